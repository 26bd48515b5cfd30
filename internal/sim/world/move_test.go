package world

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"shelltown.ai/internal/observerproto"
	"shelltown.ai/internal/sim/tuning"
	"shelltown.ai/internal/sim/world/kernel/model"
	"shelltown.ai/internal/sim/world/logic/movement"
)

func TestMove_RightThreeTimes(t *testing.T) {
	h := newHarness(t, testTuning(), nil)
	id := h.join(t, "AgentA", 0, 0).Agent.ID
	for i := 0; i < 3; i++ {
		h.move(t, id, DirRight)
	}
	a, err := h.w.Agent(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if a.X != 3 || a.Y != 0 || a.MoveCount != 3 {
		t.Fatalf("pos=(%d,%d) moves=%d want (3,0) 3", a.X, a.Y, a.MoveCount)
	}
	if n := h.sink.count(observerproto.TypeAgentMoved); n != 3 {
		t.Fatalf("agent_moved events=%d want 3", n)
	}
}

func TestMove_EdgeClampsInPlace(t *testing.T) {
	h := newHarness(t, testTuning(), nil)
	id := h.join(t, "Ann", 0, 0).Agent.ID
	r := h.move(t, id, DirUp)
	if r.Pos != (movement.Pos{}) {
		t.Fatalf("pos=%v want origin", r.Pos)
	}
	a, _ := h.w.Agent(context.Background(), id)
	if a.MoveCount != 1 {
		t.Fatalf("move_count=%d want 1", a.MoveCount)
	}
}

func TestMove_NotFoundBeforeValidation(t *testing.T) {
	h := newHarness(t, testTuning(), nil)
	_, err := h.w.Move(context.Background(), MoveRequest{AgentID: "nope", Direction: "sideways"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want NotFound", err)
	}
}

func TestMove_UnknownDirectionKeepsCooldown(t *testing.T) {
	tun := testTuning()
	tun.Cooldowns.MoveMs = 200
	h := newHarness(t, tun, nil)
	id := h.join(t, "Ann", 0, 0).Agent.ID

	_, err := h.w.Move(context.Background(), MoveRequest{AgentID: id, Direction: "sideways"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err=%v want validation", err)
	}
	if _, err := h.w.Move(context.Background(), MoveRequest{AgentID: id, Direction: DirTo}); !errors.Is(err, ErrValidation) {
		t.Fatalf("to without target: err=%v want validation", err)
	}
	// The rejected calls must not have used the cooldown.
	h.move(t, id, DirRight)
}

func TestMove_Cooldown(t *testing.T) {
	tun := testTuning()
	tun.Cooldowns.MoveMs = 200
	h := newHarness(t, tun, nil)
	id := h.join(t, "Ann", 0, 0).Agent.ID

	h.move(t, id, DirRight)
	h.clock.Advance(100 * time.Millisecond)
	_, err := h.w.Move(context.Background(), MoveRequest{AgentID: id, Direction: DirRight})
	var we *Error
	if !errors.As(err, &we) || we.Code != ErrRateLimited.Code {
		t.Fatalf("err=%v want rate limited", err)
	}
	if we.RetryAfter != 100*time.Millisecond {
		t.Fatalf("retry_after=%v want 100ms", we.RetryAfter)
	}
	h.clock.Advance(100 * time.Millisecond)
	if r := h.move(t, id, DirRight); r.Pos.X != 2 {
		t.Fatalf("x=%d want 2", r.Pos.X)
	}
}

func TestMove_BlockedCardinal(t *testing.T) {
	g := gridWithWalls(t, 10, 10, movement.Pos{X: 1, Y: 0})
	h := newHarness(t, testTuning(), g)
	id := h.join(t, "Ann", 0, 0).Agent.ID

	_, err := h.w.Move(context.Background(), MoveRequest{AgentID: id, Direction: DirRight})
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("err=%v want Blocked", err)
	}
	a, _ := h.w.Agent(context.Background(), id)
	if a.X != 0 || a.MoveCount != 0 {
		t.Fatalf("pos=(%d,%d) moves=%d want unchanged", a.X, a.Y, a.MoveCount)
	}
}

func TestMove_ToBlockedGoalStopsAtSubstitute(t *testing.T) {
	g := gridWithWalls(t, 10, 10,
		movement.Pos{X: 5, Y: 5}, movement.Pos{X: 4, Y: 5},
		movement.Pos{X: 5, Y: 4}, movement.Pos{X: 5, Y: 6})
	h := newHarness(t, testTuning(), g)
	id := h.join(t, "Ann", 9, 5).Agent.ID

	target := &movement.Pos{X: 5, Y: 5}
	var last MoveResult
	for i := 0; i < 20; i++ {
		r, err := h.w.Move(context.Background(), MoveRequest{AgentID: id, Direction: DirTo, Target: target})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		last = r
		if r.AtDestination {
			break
		}
	}
	if !last.AtDestination || last.Pos != (movement.Pos{X: 6, Y: 5}) {
		t.Fatalf("last=%+v want at (6,5)", last)
	}
	a, _ := h.w.Agent(context.Background(), id)
	if a.MoveCount != 3 {
		t.Fatalf("move_count=%d want 3", a.MoveCount)
	}
	// Already there: success, no mutation.
	r, err := h.w.Move(context.Background(), MoveRequest{AgentID: id, Direction: DirTo, Target: target})
	if err != nil || !r.AtDestination {
		t.Fatalf("r=%+v err=%v", r, err)
	}
	if a2, _ := h.w.Agent(context.Background(), id); a2.MoveCount != 3 {
		t.Fatalf("move_count=%d after no-op", a2.MoveCount)
	}
}

func TestMove_ToReplansWhenTargetChanges(t *testing.T) {
	h := newHarness(t, testTuning(), nil)
	id := h.join(t, "Ann", 0, 0).Agent.ID
	ctx := context.Background()

	if _, err := h.w.Move(ctx, MoveRequest{AgentID: id, Direction: DirTo, Target: &movement.Pos{X: 0, Y: 5}}); err != nil {
		t.Fatal(err)
	}
	r, err := h.w.Move(ctx, MoveRequest{AgentID: id, Direction: DirTo, Target: &movement.Pos{X: 5, Y: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if movement.Manhattan(r.Pos, movement.Pos{X: 5, Y: 1}) != 4 {
		t.Fatalf("pos=%v did not head for the new target", r.Pos)
	}
}

func TestMove_NeverBlockedOrOutOfBounds(t *testing.T) {
	var walls []movement.Pos
	for y := 0; y < 10; y++ {
		if y != 7 {
			walls = append(walls, movement.Pos{X: 4, Y: y})
		}
	}
	g := gridWithWalls(t, 10, 10, walls...)
	h := newHarness(t, testTuning(), g)
	id := h.join(t, "Ann", 0, 0).Agent.ID
	ctx := context.Background()

	rng := rand.New(rand.NewSource(7))
	dirs := []string{DirUp, DirDown, DirLeft, DirRight, DirTo}
	for i := 0; i < 400; i++ {
		req := MoveRequest{AgentID: id, Direction: dirs[rng.Intn(len(dirs))]}
		if req.Direction == DirTo {
			req.Target = &movement.Pos{X: rng.Intn(14) - 2, Y: rng.Intn(14) - 2}
		}
		_, err := h.w.Move(ctx, req)
		if err != nil && !errors.Is(err, ErrBlocked) {
			t.Fatalf("move %d: %v", i, err)
		}
		a, _ := h.w.Agent(ctx, id)
		if g.IsBlocked(a.X, a.Y) {
			t.Fatalf("move %d left agent on blocked/out-of-bounds tile (%d,%d)", i, a.X, a.Y)
		}
	}
}

func TestMove_NearbySortedByDistance(t *testing.T) {
	h := newHarness(t, testTuning(), nil)
	id := h.join(t, "Ann", 0, 0).Agent.ID
	far := h.join(t, "Far", 9, 9).Agent.ID
	b := h.join(t, "Bea", 4, 0).Agent.ID
	c := h.join(t, "Cid", 2, 0).Agent.ID

	r := h.move(t, id, DirRight)
	if len(r.Nearby) != 2 {
		t.Fatalf("nearby=%+v", r.Nearby)
	}
	if r.Nearby[0].AgentID != c || r.Nearby[1].AgentID != b || r.Nearby[0].Distance != 1 {
		t.Fatalf("nearby=%+v", r.Nearby)
	}
	for _, n := range r.Nearby {
		if n.AgentID == far {
			t.Fatalf("far agent listed")
		}
	}
}

func TestMove_LocationDiscoveryAndEffect(t *testing.T) {
	tun := testTuning()
	tun.Locations = []tuning.Location{
		{ID: "cafe", Name: "Cozy Café", Emoji: "☕", X: 3, Y: 0, Radius: 1, Effect: "food"},
	}
	var discovered []string
	h := newHarness(t, tun, nil, func(c *Config) {
		c.Hooks.OnLocationDiscovered = func(a model.Agent, loc tuning.Location) {
			discovered = append(discovered, a.Name+"@"+loc.ID)
		}
	})
	id := h.join(t, "Ann", 0, 0).Agent.ID

	h.move(t, id, DirRight)
	r := h.move(t, id, DirRight)
	if r.Location != "Cozy Café" {
		t.Fatalf("location=%q", r.Location)
	}
	h.move(t, id, DirRight)

	a, _ := h.w.Agent(context.Background(), id)
	if a.Location != "cafe" || a.Stats.LocationVisits["cafe"] != 2 || len(a.Stats.LocationsVisited) != 1 {
		t.Fatalf("location=%q stats=%+v", a.Location, a.Stats)
	}
	if a.Needs.Hunger != 84 || a.Needs.Energy != 100 {
		t.Fatalf("needs=%+v want hunger 84 energy 100", a.Needs)
	}
	if len(discovered) != 1 || discovered[0] != "Ann@cafe" {
		t.Fatalf("hook calls=%v", discovered)
	}
	feed, err := h.w.Feed(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, e := range feed {
		if e.Type == "location_discovered" {
			n++
			if e.Data["location"] != "Cozy Café" || e.Data["emoji"] != "☕" {
				t.Fatalf("entry=%+v", e)
			}
		}
	}
	if n != 1 {
		t.Fatalf("location_discovered entries=%d want 1", n)
	}
}
