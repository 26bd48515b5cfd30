package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"shelltown.ai/internal/protocol"
	"shelltown.ai/internal/sim/tuning"
)

type wanderer struct {
	c   *client
	rng *rand.Rand
	log *zap.Logger

	locations []tuning.Location
	target    *tuning.Location
	greeted   map[string]bool
}

func newWanderer(c *client, rng *rand.Rand, log *zap.Logger) *wanderer {
	return &wanderer{c: c, rng: rng, log: log, greeted: map[string]bool{}}
}

func (w *wanderer) run(ctx context.Context, every time.Duration) error {
	locs, err := w.c.Locations(ctx)
	if err != nil {
		return err
	}
	w.locations = locs.Locations

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if err := w.step(ctx); err != nil {
			var ae *apiError
			if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
				// Evicted or removed; nothing left to drive.
				return err
			}
			w.log.Debug("step", zap.Error(err))
		}
	}
}

// step advances one tile toward the current target location and greets newcomers nearby.
func (w *wanderer) step(ctx context.Context) error {
	if w.target == nil {
		if len(w.locations) == 0 {
			dirs := []string{"up", "down", "left", "right"}
			res, err := w.c.Move(ctx, dirs[w.rng.Intn(len(dirs))])
			if err != nil {
				return err
			}
			return w.greet(ctx, res.Nearby)
		}
		loc := w.locations[w.rng.Intn(len(w.locations))]
		w.target = &loc
	}
	res, err := w.c.MoveTo(ctx, w.target.X, w.target.Y)
	if err != nil {
		return err
	}
	if res.AtDestination {
		w.log.Info("arrived", zap.String("location", w.target.Name))
		w.target = nil
	}
	return w.greet(ctx, res.Nearby)
}

func (w *wanderer) greet(ctx context.Context, nearby []protocol.NearbyAgent) error {
	for _, n := range nearby {
		if w.greeted[n.AgentID] {
			continue
		}
		if _, err := w.c.Chat(ctx, "Hi "+n.Name+"!", n.AgentID); err != nil {
			return err
		}
		w.greeted[n.AgentID] = true
		return nil
	}
	return nil
}
