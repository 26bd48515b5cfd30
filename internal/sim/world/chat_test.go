package world

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestChat_Cooldown(t *testing.T) {
	tun := testTuning()
	tun.Cooldowns.ChatMs = 2000
	h := newHarness(t, tun, nil)
	id := h.join(t, "Ann", 0, 0).Agent.ID
	ctx := context.Background()

	if _, err := h.w.Chat(ctx, ChatRequest{AgentID: id, Text: "t=0"}); err != nil {
		t.Fatalf("t=0: %v", err)
	}
	h.clock.Advance(time.Second)
	if _, err := h.w.Chat(ctx, ChatRequest{AgentID: id, Text: "t=1"}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("t=1: err=%v want RateLimited", err)
	}
	h.clock.Advance(1100 * time.Millisecond)
	if _, err := h.w.Chat(ctx, ChatRequest{AgentID: id, Text: "t=2.1"}); err != nil {
		t.Fatalf("t=2.1: %v", err)
	}
	v, _ := h.w.Query(ctx, QueryRequest{})
	if len(v.Chat) != 2 || v.Chat[0].Text != "t=0" || v.Chat[1].Text != "t=2.1" {
		t.Fatalf("chat=%+v", v.Chat)
	}
}

func TestChat_Validation(t *testing.T) {
	h := newHarness(t, testTuning(), nil)
	id := h.join(t, "Ann", 0, 0).Agent.ID
	ctx := context.Background()

	if _, err := h.w.Chat(ctx, ChatRequest{AgentID: "ghost", Text: ""}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ghost: err=%v want NotFound", err)
	}
	for _, text := range []string{"", "   \n\t", strings.Repeat("é", 501)} {
		if _, err := h.w.Chat(ctx, ChatRequest{AgentID: id, Text: text}); !errors.Is(err, ErrValidation) {
			t.Fatalf("len=%d err=%v want validation", len(text), err)
		}
	}
	if _, err := h.w.Chat(ctx, ChatRequest{AgentID: id, Text: strings.Repeat("é", 500)}); err != nil {
		t.Fatalf("500 runes: %v", err)
	}
}

func TestChat_StateAndRelationships(t *testing.T) {
	tun := testTuning()
	tun.Chat.FriendAt = 4
	h := newHarness(t, tun, nil)
	ctx := context.Background()
	ann := h.join(t, "Ann", 0, 0).Agent.ID
	bea := h.join(t, "Bea", 5, 5).Agent.ID
	far := h.join(t, "Far", 9, 9).Agent.ID

	for i := 0; i < 2; i++ {
		if _, err := h.w.Chat(ctx, ChatRequest{AgentID: ann, Text: "hello"}); err != nil {
			t.Fatal(err)
		}
	}
	a, _ := h.w.Agent(ctx, ann)
	if a.MessageCount != 2 || a.Activity != "chatting" || a.Needs.Social != 60 {
		t.Fatalf("agent=%+v", a)
	}
	if len(a.Friends) != 1 || a.Friends[0] != bea {
		t.Fatalf("friends=%v want [%s]", a.Friends, bea)
	}

	rv, err := h.w.Relationships(ctx, ann)
	if err != nil {
		t.Fatal(err)
	}
	if len(rv.Relationships) != 1 || rv.Relationships[0].AgentID != bea || rv.Relationships[0].Level != 4 {
		t.Fatalf("relationships=%+v", rv.Relationships)
	}
	back, _ := h.w.Relationships(ctx, bea)
	if len(back.Relationships) != 1 || back.Relationships[0].Level != 2 || back.Relationships[0].Name != "Ann" {
		t.Fatalf("bea relationships=%+v", back.Relationships)
	}
	if fr, _ := h.w.Relationships(ctx, far); len(fr.Relationships) != 0 {
		t.Fatalf("far agent heard the chat: %+v", fr.Relationships)
	}
}

func TestChat_SaveHintEveryNth(t *testing.T) {
	tun := testTuning()
	tun.Chat.SaveEveryN = 3
	h := newHarness(t, tun, nil)
	id := h.join(t, "Ann", 0, 0).Agent.ID
	<-h.w.SaveHints()

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if _, err := h.w.Chat(ctx, ChatRequest{AgentID: id, Text: "hi"}); err != nil {
			t.Fatal(err)
		}
		select {
		case <-h.w.SaveHints():
			if i != 3 {
				t.Fatalf("save hint after message %d", i)
			}
		default:
			if i == 3 {
				t.Fatalf("no save hint after message 3")
			}
		}
	}
}

func TestChat_HistoryRing(t *testing.T) {
	tun := testTuning()
	tun.Chat.HistorySize = 3
	tun.QueryChatLimit = 10
	h := newHarness(t, tun, nil)
	id := h.join(t, "Ann", 0, 0).Agent.ID
	ctx := context.Background()
	for _, m := range []string{"a", "b", "c", "d"} {
		if _, err := h.w.Chat(ctx, ChatRequest{AgentID: id, Text: m}); err != nil {
			t.Fatal(err)
		}
	}
	v, _ := h.w.Query(ctx, QueryRequest{})
	var got []string
	for _, m := range v.Chat {
		got = append(got, m.Text)
	}
	if strings.Join(got, "") != "bcd" {
		t.Fatalf("history=%v want [b c d]", got)
	}
}
