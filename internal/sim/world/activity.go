package world

import (
	"context"

	"shelltown.ai/internal/observerproto"
	"shelltown.ai/internal/protocol"
	"shelltown.ai/internal/sim/world/kernel/model"
)

var activityEffects = map[string]needDelta{
	"resting":     {model.NeedEnergy, 10},
	"exploring":   {model.NeedFun, 5},
	"socializing": {model.NeedSocial, 3},
}

// SetActivity sets the activity tag and returns the agent's needs afterwards.
func (w *World) SetActivity(ctx context.Context, agentID, activity string) (model.Needs, error) {
	var needs model.Needs
	err := w.do(ctx, func() error {
		a, err := w.agent(agentID)
		if err != nil {
			return err
		}
		if !contains(w.tun.Activities, activity) {
			return errorf(protocol.ErrBadRequest, "invalid activity %q, choose one of %v", activity, w.tun.Activities)
		}
		a.Activity = activity
		a.LastSeen = w.now()
		if d, ok := activityEffects[activity]; ok {
			_, _ = a.Needs.Adjust(d.need, d.delta)
		}
		needs = a.Needs
		w.emit(observerproto.TypeAgentActivity, a, observerproto.AgentActivity{
			AgentID:  a.ID,
			Name:     a.Name,
			Activity: activity,
			At:       a.LastSeen.UTC(),
		})
		return nil
	})
	return needs, err
}

// AdjustNeed is the generic mutation feature layers use. It returns the clamped value.
func (w *World) AdjustNeed(ctx context.Context, agentID string, need model.Need, delta float64) (float64, error) {
	var v float64
	err := w.do(ctx, func() error {
		a, err := w.agent(agentID)
		if err != nil {
			return err
		}
		v, err = a.Needs.Adjust(need, delta)
		if err != nil {
			return errorf(protocol.ErrBadRequest, "%v", err)
		}
		return nil
	})
	return v, err
}

func (w *World) SetMood(ctx context.Context, agentID, mood string) error {
	return w.do(ctx, func() error {
		a, err := w.agent(agentID)
		if err != nil {
			return err
		}
		if !contains(w.tun.Moods, mood) {
			return errorf(protocol.ErrBadRequest, "invalid mood %q", mood)
		}
		a.Mood = mood
		return nil
	})
}

// SetRomance records status between a and b in both directions. An empty status clears it.
func (w *World) SetRomance(ctx context.Context, a, b, status string) error {
	return w.do(ctx, func() error {
		if a == b {
			return errorf(protocol.ErrBadRequest, "romance needs two different agents")
		}
		for _, id := range []string{a, b} {
			if w.agents[id] == nil {
				return notFound(id)
			}
		}
		r := model.Romance{Status: status, Since: w.now().UTC()}
		w.setRomance(a, b, r)
		w.setRomance(b, a, r)
		return nil
	})
}

func (w *World) setRomance(a, b string, r model.Romance) {
	if r.Status == "" {
		delete(w.romance[a], b)
		if len(w.romance[a]) == 0 {
			delete(w.romance, a)
		}
		return
	}
	m := w.romance[a]
	if m == nil {
		m = map[string]model.Romance{}
		w.romance[a] = m
	}
	m[b] = r
}
