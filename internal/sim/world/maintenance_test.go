package world

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"shelltown.ai/internal/observerproto"
	"shelltown.ai/internal/sim/world/kernel/model"
)

func TestEvictInactive_OneLeavePerAgent(t *testing.T) {
	h := newHarness(t, testTuning(), nil)
	ctx := context.Background()
	idle := h.join(t, "Idle", 0, 0).Agent.ID
	sub, err := h.w.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.w.Unsubscribe(sub)
	if env := nextFrame(t, sub); env.Type != observerproto.TypeWorldState {
		t.Fatalf("first frame=%s", env.Type)
	}

	h.clock.Advance(200 * time.Second)
	busy := h.join(t, "Busy", 1, 1).Agent.ID
	nextFrame(t, sub) // agent_joined
	h.clock.Advance(101 * time.Second)

	evicted, err := h.w.EvictInactive(ctx, 300*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(evicted) != 1 || evicted[0] != idle {
		t.Fatalf("evicted=%v want [%s]", evicted, idle)
	}
	env := nextFrame(t, sub)
	if env.Type != observerproto.TypeAgentLeft {
		t.Fatalf("frame=%s want agent_left", env.Type)
	}
	var left observerproto.AgentLeft
	if err := json.Unmarshal(env.Data, &left); err != nil {
		t.Fatal(err)
	}
	if left.AgentID != idle || left.Reason != observerproto.LeaveReasonInactive {
		t.Fatalf("left=%+v", left)
	}

	again, err := h.w.EvictInactive(ctx, 300*time.Second)
	if err != nil || len(again) != 0 {
		t.Fatalf("second pass evicted=%v err=%v", again, err)
	}
	noFrame(t, sub)
	if n := h.sink.count(observerproto.TypeAgentLeft); n != 1 {
		t.Fatalf("agent_left events=%d want 1", n)
	}
	if _, err := h.w.Agent(ctx, busy); err != nil {
		t.Fatalf("busy agent evicted: %v", err)
	}
	if _, err := h.w.Agent(ctx, idle); !errors.Is(err, ErrNotFound) {
		t.Fatalf("idle agent: err=%v", err)
	}
}

func TestDecayNeeds_FloorsAtZero(t *testing.T) {
	h := newHarness(t, testTuning(), nil)
	ctx := context.Background()
	id := h.join(t, "Ann", 0, 0).Agent.ID
	if _, err := h.w.AdjustNeed(ctx, id, model.NeedSocial, -49.8); err != nil {
		t.Fatal(err)
	}
	n, err := h.w.DecayNeeds(ctx, DecayRule{model.NeedEnergy: 1, model.NeedSocial: 0.5})
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	a, _ := h.w.Agent(ctx, id)
	if a.Needs.Energy != 99 || a.Needs.Social != 0 {
		t.Fatalf("needs=%+v want energy 99 social 0", a.Needs)
	}
}

func TestLeave_ClearsState(t *testing.T) {
	tun := testTuning()
	tun.Cooldowns.ChatMs = 2000
	h := newHarness(t, tun, nil)
	ctx := context.Background()
	ann := h.join(t, "Ann", 0, 0).Agent.ID
	bea := h.join(t, "Bea", 1, 0).Agent.ID
	if _, err := h.w.Chat(ctx, ChatRequest{AgentID: ann, Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := h.w.SetRomance(ctx, ann, bea, "dating"); err != nil {
		t.Fatal(err)
	}
	if err := h.w.Leave(ctx, ann); err != nil {
		t.Fatal(err)
	}
	if err := h.w.Leave(ctx, ann); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second leave: err=%v", err)
	}
	rv, _ := h.w.Relationships(ctx, bea)
	if len(rv.Relationships) != 0 || len(rv.Friends) != 0 {
		t.Fatalf("relationships survived leave: %+v", rv)
	}
	snap, _ := h.w.ExportSnapshot(ctx)
	if len(snap.Romance) != 0 || len(snap.Relationships) != 0 {
		t.Fatalf("snapshot kept rows: %+v %+v", snap.Romance, snap.Relationships)
	}
	if h.w.limiter.Len() != 0 {
		t.Fatalf("rate-limit state survived leave")
	}
}

func TestWorld_StoppedLoop(t *testing.T) {
	h := newHarness(t, testTuning(), nil)
	h.w.Stop()
	<-h.w.Done()
	if _, err := h.w.Agents(context.Background()); !errors.Is(err, ErrWorldStopped) {
		t.Fatalf("err=%v want ErrWorldStopped", err)
	}
}

func TestWorld_CommandPanicIsRecovered(t *testing.T) {
	h := newHarness(t, testTuning(), nil)
	err := h.w.do(context.Background(), func() error { panic("boom") })
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("err=%v want internal", err)
	}
	if _, err := h.w.Agents(context.Background()); err != nil {
		t.Fatalf("loop died after panic: %v", err)
	}
	if h.w.Metrics().Panics != 1 {
		t.Fatalf("panics=%d", h.w.Metrics().Panics)
	}
}
