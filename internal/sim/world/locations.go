package world

import (
	"shelltown.ai/internal/sim/tuning"
	"shelltown.ai/internal/sim/world/kernel/model"
	"shelltown.ai/internal/sim/world/logic/movement"
)

type needDelta struct {
	need  model.Need
	delta float64
}

var locationEffects = map[string][]needDelta{
	"food":     {{model.NeedHunger, 2}, {model.NeedEnergy, 1}},
	"relax":    {{model.NeedEnergy, 1}, {model.NeedHappiness, 1}},
	"fun":      {{model.NeedFun, 1}},
	"social":   {{model.NeedSocial, 0.5}},
	"romantic": {{model.NeedRomance, 1}},
	"thinking": {{model.NeedHappiness, 0.5}},
}

// locationAt returns the first configured location whose radius covers p.
func (w *World) locationAt(p movement.Pos) (tuning.Location, bool) {
	for _, l := range w.tun.Locations {
		if movement.Manhattan(p, movement.Pos{X: l.X, Y: l.Y}) <= l.Radius {
			return l, true
		}
	}
	return tuning.Location{}, false
}

// enterLocation updates membership after a move and applies the location effect.
func (w *World) enterLocation(a *model.Agent) {
	loc, ok := w.locationAt(a.Pos())
	if !ok {
		a.Location = ""
		return
	}
	a.Location = loc.ID
	if a.Visit(loc.ID) {
		w.logFeed("location_discovered", map[string]any{
			"agent_id":   a.ID,
			"agent_name": a.Name,
			"location":   loc.Name,
			"emoji":      loc.Emoji,
		})
		if w.hooks.OnLocationDiscovered != nil {
			w.hooks.OnLocationDiscovered(a.Clone(), loc)
		}
	}
	for _, d := range locationEffects[loc.Effect] {
		_, _ = a.Needs.Adjust(d.need, d.delta)
	}
}

// Locations is static configuration and does not go through the loop.
func (w *World) Locations() []tuning.Location {
	return append([]tuning.Location(nil), w.tun.Locations...)
}
