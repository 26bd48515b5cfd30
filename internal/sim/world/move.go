package world

import (
	"context"
	"sort"

	"shelltown.ai/internal/observerproto"
	"shelltown.ai/internal/protocol"
	"shelltown.ai/internal/sim/world/kernel/model"
	"shelltown.ai/internal/sim/world/logic/movement"
	"shelltown.ai/internal/sim/world/logic/rates"
)

const (
	DirUp    = "up"
	DirDown  = "down"
	DirLeft  = "left"
	DirRight = "right"
	DirTo    = "to"
)

var cardinal = map[string]movement.Pos{
	DirUp:    {X: 0, Y: -1},
	DirDown:  {X: 0, Y: 1},
	DirLeft:  {X: -1, Y: 0},
	DirRight: {X: 1, Y: 0},
}

type MoveRequest struct {
	AgentID   string
	Direction string
	// Target is required for DirTo.
	Target *movement.Pos
}

type NearbyAgent struct {
	AgentID  string
	Name     string
	Emoji    string
	Pos      movement.Pos
	Distance int
}

type MoveResult struct {
	Pos           movement.Pos
	AtDestination bool
	// Location is the display name of the location the agent is standing in.
	Location string
	Nearby   []NearbyAgent
}

func (w *World) Move(ctx context.Context, req MoveRequest) (MoveResult, error) {
	var out MoveResult
	err := w.do(ctx, func() error {
		r, err := w.move(req)
		out = r
		return err
	})
	return out, err
}

func (w *World) move(req MoveRequest) (MoveResult, error) {
	a, err := w.agent(req.AgentID)
	if err != nil {
		return MoveResult{}, err
	}
	delta, isCardinal := cardinal[req.Direction]
	switch {
	case isCardinal:
	case req.Direction == DirTo:
		if req.Target == nil {
			return MoveResult{}, errorf(protocol.ErrBadRequest, "direction %q needs target_x and target_y", DirTo)
		}
	default:
		return MoveResult{}, errorf(protocol.ErrBadRequest, "unknown direction %q", req.Direction)
	}
	now := w.now()
	if !w.limiter.Allow(a.ID, rates.KindMove, now) {
		w.stats.rateLimited.Add(1)
		return MoveResult{}, &Error{
			Code:       protocol.ErrRateLimit,
			Message:    "too many moves, slow down",
			RetryAfter: w.limiter.Remaining(a.ID, rates.KindMove, now),
		}
	}

	from := a.Pos()
	var next movement.Pos
	if isCardinal {
		delete(w.paths, a.ID)
		next.X, next.Y = w.grid.Clamp(from.X+delta.X, from.Y+delta.Y)
	} else {
		step, ok := w.nextStep(a, *req.Target)
		if !ok {
			return MoveResult{Pos: from, AtDestination: true, Location: w.locationName(a), Nearby: w.nearby(a)}, nil
		}
		next = step
	}

	if w.grid.IsBlocked(next.X, next.Y) {
		delete(w.paths, a.ID)
		w.stats.blocked.Add(1)
		return MoveResult{}, errorf(protocol.ErrBlocked, "path blocked at (%d,%d)", next.X, next.Y)
	}

	a.SetPos(next)
	a.MoveCount++
	a.LastSeen = now
	w.enterLocation(a)
	w.stats.moves.Add(1)

	pc := w.paths[a.ID]
	arrived := !isCardinal && (pc == nil || len(pc.Steps) == 0)
	if pc != nil && len(pc.Steps) == 0 {
		delete(w.paths, a.ID)
	}

	name := w.locationName(a)
	w.emit(observerproto.TypeAgentMoved, a, observerproto.AgentMoved{
		AgentID:  a.ID,
		Name:     a.Name,
		Emoji:    a.Emoji,
		X:        a.X,
		Y:        a.Y,
		Location: name,
	})
	return MoveResult{Pos: next, AtDestination: arrived, Location: name, Nearby: w.nearby(a)}, nil
}

// nextStep pops the next tile toward target, reusing the cached path while it stays valid.
func (w *World) nextStep(a *model.Agent, target movement.Pos) (movement.Pos, bool) {
	target.X, target.Y = w.grid.Clamp(target.X, target.Y)
	from := a.Pos()

	pc := w.paths[a.ID]
	if pc != nil && (pc.Dest != target || len(pc.Steps) == 0 ||
		movement.Manhattan(from, pc.Steps[0]) != 1 || w.grid.IsBlocked(pc.Steps[0].X, pc.Steps[0].Y)) {
		pc = nil
	}
	if pc == nil {
		steps := movement.FindPath(w.grid, from, target, w.tun.PathMaxExpanded)
		if len(steps) == 0 {
			delete(w.paths, a.ID)
			return movement.Pos{}, false
		}
		pc = &pathCache{Dest: target, Steps: steps}
		w.paths[a.ID] = pc
	}
	step := pc.Steps[0]
	pc.Steps = pc.Steps[1:]
	return step, true
}

func (w *World) locationName(a *model.Agent) string {
	for _, l := range w.tun.Locations {
		if l.ID == a.Location {
			return l.Name
		}
	}
	return ""
}

// nearby lists other agents within the nearby radius, closest first.
func (w *World) nearby(a *model.Agent) []NearbyAgent {
	out := []NearbyAgent{}
	for _, o := range w.agents {
		if o.ID == a.ID {
			continue
		}
		d := movement.Manhattan(a.Pos(), o.Pos())
		if d > w.tun.NearbyRadius {
			continue
		}
		out = append(out, NearbyAgent{AgentID: o.ID, Name: o.Name, Emoji: o.Emoji, Pos: o.Pos(), Distance: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out
}
