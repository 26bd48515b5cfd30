package broadcast

import (
	"testing"
	"time"
)

func recv(t *testing.T, s *Subscription) string {
	t.Helper()
	select {
	case b := <-s.C():
		return string(b)
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for frame")
	}
	return ""
}

func TestHub_InitialThenPublishOrder(t *testing.T) {
	h := NewHub(Options{Buffer: 8})
	s := h.Subscribe([]byte("init"))
	h.Publish([]byte("e1"))
	h.Publish([]byte("e2"))

	for _, want := range []string{"init", "e1", "e2"} {
		if got := recv(t, s); got != want {
			t.Fatalf("got=%q want=%q", got, want)
		}
	}
}

func TestHub_SlowSubscriberDetached(t *testing.T) {
	h := NewHub(Options{Buffer: 1, SendTimeout: 200 * time.Millisecond})
	slow := h.Subscribe(nil)
	fast := h.Subscribe(nil)

	done := make(chan struct{})
	var got []string
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			select {
			case b := <-fast.C():
				got = append(got, string(b))
			case <-time.After(2 * time.Second):
				return
			}
		}
	}()

	h.Publish([]byte("a"))
	h.Publish([]byte("b"))
	h.Publish([]byte("c"))
	<-done

	select {
	case <-slow.Done():
	default:
		t.Fatalf("slow subscriber not detached")
	}
	if h.Len() != 1 {
		t.Fatalf("Len=%d want=1", h.Len())
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("fast subscriber frames=%v", got)
	}
	if st := h.Stats(); st.Dropped != 1 || st.Published != 3 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestHub_UnsubscribeIdempotent(t *testing.T) {
	h := NewHub(Options{})
	s := h.Subscribe(nil)
	h.Unsubscribe(s)
	h.Unsubscribe(s)
	if h.Len() != 0 {
		t.Fatalf("Len=%d want=0", h.Len())
	}
	if n := h.Publish([]byte("x")); n != 0 {
		t.Fatalf("detached=%d want=0", n)
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub(Options{})
	a, b := h.Subscribe(nil), h.Subscribe(nil)
	h.Close()
	for _, s := range []*Subscription{a, b} {
		select {
		case <-s.Done():
		default:
			t.Fatalf("sub %d not closed", s.ID)
		}
	}
}
