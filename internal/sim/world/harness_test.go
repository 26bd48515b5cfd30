package world

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"shelltown.ai/internal/observerproto"
	"shelltown.ai/internal/sim/broadcast"
	"shelltown.ai/internal/sim/tuning"
	"shelltown.ai/internal/sim/world/logic/movement"
	"shelltown.ai/internal/sim/world/terrain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []EventLogEntry
}

func (s *recordingSink) WriteEvent(e EventLogEntry) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) count(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// testTuning is a 10x10 town with one spawn point at the origin, no locations and no cooldowns.
func testTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.MapWidth, t.MapHeight = 10, 10
	t.SpawnPolicy = "round_robin"
	t.SpawnPoints = [][2]int{{0, 0}}
	t.Cooldowns = tuning.Cooldowns{}
	t.Locations = nil
	return t
}

type harness struct {
	w     *World
	clock *fakeClock
	sink  *recordingSink
}

func newHarness(t *testing.T, tun tuning.Tuning, grid *terrain.Grid, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		clock: &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		sink:  &recordingSink{},
	}
	cfg := Config{
		ID:     "test",
		Tuning: tun,
		Grid:   grid,
		Hub:    broadcast.NewHub(broadcast.Options{SendTimeout: time.Second}),
		Sink:   h.sink,
		Clock:  h.clock.Now,
		Seed:   42,
	}
	for _, o := range opts {
		o(&cfg)
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	h.w = w
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-w.Done()
	})
	return h
}

func (h *harness) join(t *testing.T, name string, x, y int) JoinResult {
	t.Helper()
	r, err := h.w.Join(context.Background(), JoinRequest{Name: name, Spawn: &movement.Pos{X: x, Y: y}})
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return r
}

func (h *harness) move(t *testing.T, id, dir string) MoveResult {
	t.Helper()
	r, err := h.w.Move(context.Background(), MoveRequest{AgentID: id, Direction: dir})
	if err != nil {
		t.Fatalf("move %s %s: %v", id, dir, err)
	}
	return r
}

func gridWithWalls(t *testing.T, w, h int, walls ...movement.Pos) *terrain.Grid {
	t.Helper()
	data := make([]int, w*h)
	for _, p := range walls {
		data[p.Y*w+p.X] = 1
	}
	g, err := terrain.FromLayer(terrain.Layer{Width: w, Height: h, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// nextFrame reads one envelope or fails after a second.
func nextFrame(t *testing.T, sub *broadcast.Subscription) observerproto.Envelope {
	t.Helper()
	select {
	case b := <-sub.C():
		var env observerproto.Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("no frame")
	}
	return observerproto.Envelope{}
}

func noFrame(t *testing.T, sub *broadcast.Subscription) {
	t.Helper()
	select {
	case b := <-sub.C():
		t.Fatalf("unexpected frame %s", b)
	case <-time.After(50 * time.Millisecond):
	}
}
