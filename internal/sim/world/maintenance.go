package world

import (
	"context"
	"sort"
	"time"

	"shelltown.ai/internal/observerproto"
	"shelltown.ai/internal/sim/world/kernel/model"
)

// EvictInactive removes every agent whose LastSeen is older than timeout and returns
// their ids in sorted order.
func (w *World) EvictInactive(ctx context.Context, timeout time.Duration) ([]string, error) {
	var out []string
	err := w.do(ctx, func() error {
		cutoff := w.now().Add(-timeout)
		for id, a := range w.agents {
			if a.LastSeen.Before(cutoff) {
				out = append(out, id)
			}
		}
		sort.Strings(out)
		for _, id := range out {
			w.depart(id, observerproto.LeaveReasonInactive)
			w.stats.evictions.Add(1)
		}
		if len(out) > 0 {
			w.hintSave()
		}
		return nil
	})
	return out, err
}

// DecayRule lowers needs by fixed amounts; results are floored at zero.
type DecayRule map[model.Need]float64

func (r DecayRule) apply(n *model.Needs) {
	for k, d := range r {
		_, _ = n.Adjust(k, -d)
	}
}

// DecayNeeds applies rule to every agent as one unit and returns how many were touched.
func (w *World) DecayNeeds(ctx context.Context, rule DecayRule) (int, error) {
	var n int
	err := w.do(ctx, func() error {
		for _, a := range w.agents {
			rule.apply(&a.Needs)
			n++
		}
		return nil
	})
	return n, err
}
