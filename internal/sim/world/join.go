package world

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"shelltown.ai/internal/observerproto"
	"shelltown.ai/internal/protocol"
	"shelltown.ai/internal/sim/world/kernel/model"
	"shelltown.ai/internal/sim/world/logic/ids"
	"shelltown.ai/internal/sim/world/logic/movement"
)

const (
	nameMinRunes = 2
	nameMaxRunes = 20

	defaultEmoji       = "🤖"
	defaultDescription = "A curious AI agent"

	// spawnSearchRadius bounds the free-tile search around a blocked spawn point.
	spawnSearchRadius = 20
)

type JoinRequest struct {
	Name        string
	Description string
	Emoji       string
	Sprite      string

	// Spawn optionally overrides the spawn policy. It is clamped to the map.
	Spawn *movement.Pos
}

type JoinResult struct {
	Agent model.Agent
	Token string
}

func (w *World) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	var out JoinResult
	err := w.do(ctx, func() error {
		r, err := w.join(req)
		out = r
		return err
	})
	return out, err
}

func (w *World) join(req JoinRequest) (JoinResult, error) {
	name := strings.TrimSpace(req.Name)
	if n := utf8.RuneCountInString(name); n < nameMinRunes || n > nameMaxRunes {
		return JoinResult{}, errorf(protocol.ErrBadRequest, "name must be %d-%d characters", nameMinRunes, nameMaxRunes)
	}
	if len(w.agents) >= w.tun.MaxAgents {
		return JoinResult{}, errorf(protocol.ErrWorldFull, "world is full (%d agents)", w.tun.MaxAgents)
	}
	key := nameKey(name)
	if _, taken := w.byName[key]; taken {
		return JoinResult{}, errorf(protocol.ErrNameTaken, "name %q is already taken by an active agent", name)
	}
	token, err := ids.Token()
	if err != nil {
		return JoinResult{}, errorf(protocol.ErrInternal, "token: %v", err)
	}

	now := w.now()
	a := &model.Agent{
		ID:          ids.Unique(func(id string) bool { return w.agents[id] != nil }),
		Name:        name,
		Description: req.Description,
		Emoji:       req.Emoji,
		Sprite:      req.Sprite,
		Token:       token,
		Needs:       model.DefaultNeeds(),
		Mood:        w.tun.Moods[w.rng.Intn(len(w.tun.Moods))],
		Activity:    "exploring",
		Friends:     []string{},
		Stats:       model.Stats{LocationsVisited: []string{}, LocationVisits: map[string]int{}},
		JoinedAt:    now,
		LastSeen:    now,
	}
	if a.Emoji == "" {
		a.Emoji = defaultEmoji
	}
	if a.Description == "" {
		a.Description = defaultDescription
	}
	if !contains(w.tun.Sprites, a.Sprite) {
		a.Sprite = w.tun.Sprites[w.rng.Intn(len(w.tun.Sprites))]
	}
	a.SetPos(w.spawnPos(req.Spawn))
	if loc, ok := w.locationAt(a.Pos()); ok {
		a.Location = loc.ID
	}

	w.agents[a.ID] = a
	w.byName[key] = a.ID
	w.joins++
	w.stats.joins.Add(1)
	w.stats.agents.Store(int64(len(w.agents)))

	w.logFeed("agent_joined", map[string]any{"agent_id": a.ID, "agent_name": a.Name, "emoji": a.Emoji})
	w.emit(observerproto.TypeAgentJoined, a, observerproto.AgentJoined{Agent: a.Clone()})
	w.hintSave()
	w.log.Info("agent joined", zap.String("agent_id", a.ID), zap.String("name", a.Name), zap.Int("x", a.X), zap.Int("y", a.Y))

	return JoinResult{Agent: a.Clone(), Token: token}, nil
}

func (w *World) spawnPos(hint *movement.Pos) movement.Pos {
	var p movement.Pos
	switch {
	case hint != nil:
		p.X, p.Y = w.grid.Clamp(hint.X, hint.Y)
	case w.tun.SpawnPolicy == "round_robin":
		sp := w.tun.SpawnPoints[w.spawnCursor%len(w.tun.SpawnPoints)]
		w.spawnCursor++
		p = movement.Pos{X: sp[0], Y: sp[1]}
	default:
		sp := w.tun.SpawnPoints[w.rng.Intn(len(w.tun.SpawnPoints))]
		p = movement.Pos{X: sp[0], Y: sp[1]}
	}
	if free, ok := movement.NearestFree(w.grid, p, spawnSearchRadius); ok {
		return free
	}
	return p
}
