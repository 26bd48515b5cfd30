package world

import (
	"context"
	"sort"

	"shelltown.ai/internal/persistence/snapshot"
	"shelltown.ai/internal/sim/world/kernel/model"
	"shelltown.ai/internal/sim/world/logic/mathx"
	"shelltown.ai/internal/sim/world/logic/movement"
)

const snapshotFeedTail = 100

// ExportSnapshot captures a consistent point-in-time copy of the world.
func (w *World) ExportSnapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	var snap snapshot.SnapshotV1
	err := w.do(ctx, func() error {
		snap = w.exportSnapshot()
		return nil
	})
	return snap, err
}

func (w *World) exportSnapshot() snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: w.id, SavedAt: w.now().UTC()},
		Width:  w.grid.Width(),
		Height: w.grid.Height(),
		Agents: []snapshot.AgentV1{},
		Chat:   []snapshot.ChatV1{},
		Counters: snapshot.CountersV1{
			SpawnCursor: w.spawnCursor,
			Joins:       w.joins,
			Messages:    w.messages,
		},
	}
	for _, a := range w.agentList(nil, 0) {
		s.Agents = append(s.Agents, agentToV1(a))
	}
	for _, m := range w.chat.Last(w.tun.Chat.SnapshotTail) {
		s.Chat = append(s.Chat, snapshot.ChatV1{
			ID: m.ID, FromID: m.FromID, FromName: m.FromName, FromEmoji: m.FromEmoji,
			Text: m.Text, To: m.To, Timestamp: m.Timestamp, X: m.X, Y: m.Y,
		})
	}
	for from, m := range w.rel {
		for to, lvl := range m {
			s.Relationships = append(s.Relationships, snapshot.RelationshipV1{From: from, To: to, Level: lvl})
		}
	}
	sort.Slice(s.Relationships, func(i, j int) bool {
		a, b := s.Relationships[i], s.Relationships[j]
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	for agent, m := range w.romance {
		for partner, r := range m {
			s.Romance = append(s.Romance, snapshot.RomanceV1{Agent: agent, Partner: partner, Status: r.Status, Since: r.Since})
		}
	}
	sort.Slice(s.Romance, func(i, j int) bool {
		a, b := s.Romance[i], s.Romance[j]
		if a.Agent != b.Agent {
			return a.Agent < b.Agent
		}
		return a.Partner < b.Partner
	})
	for _, f := range w.feed.Last(snapshotFeedTail) {
		s.Feed = append(s.Feed, snapshot.FeedV1{Type: f.Type, Data: f.Data, Timestamp: f.Timestamp})
	}
	return s
}

func agentToV1(a model.Agent) snapshot.AgentV1 {
	needs := make(map[string]float64, len(model.AllNeeds))
	for _, k := range model.AllNeeds {
		v, _ := a.Needs.Get(k)
		needs[string(k)] = v
	}
	return snapshot.AgentV1{
		ID: a.ID, Name: a.Name, Description: a.Description, Emoji: a.Emoji, Sprite: a.Sprite,
		Token: a.Token,
		X:     a.X, Y: a.Y,
		Needs: needs, Mood: a.Mood, Activity: a.Activity, Location: a.Location,
		MoveCount: a.MoveCount, MessageCount: a.MessageCount,
		Friends:          a.Friends,
		LocationsVisited: a.Stats.LocationsVisited,
		LocationVisits:   a.Stats.LocationVisits,
		JoinedAt:         a.JoinedAt,
		LastSeen:         a.LastSeen,
	}
}

func agentFromV1(v snapshot.AgentV1) model.Agent {
	a := model.Agent{
		ID: v.ID, Name: v.Name, Description: v.Description, Emoji: v.Emoji, Sprite: v.Sprite,
		Token: v.Token,
		X:     v.X, Y: v.Y,
		Needs: model.DefaultNeeds(), Mood: v.Mood, Activity: v.Activity, Location: v.Location,
		MoveCount: v.MoveCount, MessageCount: v.MessageCount,
		Friends: append([]string{}, v.Friends...),
		Stats: model.Stats{
			LocationsVisited: append([]string{}, v.LocationsVisited...),
			LocationVisits:   map[string]int{},
		},
		JoinedAt: v.JoinedAt,
		LastSeen: v.LastSeen,
	}
	for k, val := range v.LocationVisits {
		a.Stats.LocationVisits[k] = val
	}
	for k, val := range v.Needs {
		a.Needs.Set(model.Need(k), val)
	}
	return a
}

// ImportSnapshot replaces all world state with snap. Path caches and rate limits start
// empty; agents outside the map or on blocked tiles are moved to the nearest free tile.
func (w *World) ImportSnapshot(ctx context.Context, snap snapshot.SnapshotV1) error {
	return w.do(ctx, func() error {
		w.importSnapshot(snap)
		return nil
	})
}

func (w *World) importSnapshot(snap snapshot.SnapshotV1) {
	w.resetState()
	for _, v := range snap.Agents {
		if v.ID == "" || w.agents[v.ID] != nil {
			continue
		}
		key := nameKey(v.Name)
		if _, dup := w.byName[key]; dup {
			continue
		}
		a := agentFromV1(v)
		if a.Emoji == "" {
			a.Emoji = defaultEmoji
		}
		if a.LastSeen.IsZero() {
			a.LastSeen = w.now()
		}
		x, y := w.grid.Clamp(a.X, a.Y)
		a.X, a.Y = x, y
		if p, ok := movement.NearestFree(w.grid, a.Pos(), spawnSearchRadius); ok {
			a.SetPos(p)
		}
		w.agents[a.ID] = &a
		w.byName[key] = a.ID
	}
	for _, a := range w.agents {
		kept := a.Friends[:0]
		for _, f := range a.Friends {
			if w.agents[f] != nil && f != a.ID {
				kept = append(kept, f)
			}
		}
		a.Friends = kept
	}
	msgs := make([]model.ChatMessage, 0, len(snap.Chat))
	for _, m := range snap.Chat {
		msgs = append(msgs, model.ChatMessage{
			ID: m.ID, FromID: m.FromID, FromName: m.FromName, FromEmoji: m.FromEmoji,
			Text: m.Text, To: m.To, Timestamp: m.Timestamp, X: m.X, Y: m.Y,
		})
	}
	w.chat.Reset(msgs)
	for _, r := range snap.Relationships {
		if w.agents[r.From] == nil || w.agents[r.To] == nil || r.From == r.To {
			continue
		}
		if w.rel[r.From] == nil {
			w.rel[r.From] = map[string]int{}
		}
		w.rel[r.From][r.To] = mathx.ClampInt(r.Level, 0, relMax)
	}
	for _, r := range snap.Romance {
		if w.agents[r.Agent] == nil || w.agents[r.Partner] == nil {
			continue
		}
		w.setRomance(r.Agent, r.Partner, model.Romance{Status: r.Status, Since: r.Since})
	}
	feed := make([]model.FeedEntry, 0, len(snap.Feed))
	for _, f := range snap.Feed {
		feed = append(feed, model.FeedEntry{Type: f.Type, Data: f.Data, Timestamp: f.Timestamp})
	}
	w.feed.Reset(feed)
	w.spawnCursor = snap.Counters.SpawnCursor
	w.joins = snap.Counters.Joins
	w.messages = snap.Counters.Messages
	w.stats.agents.Store(int64(len(w.agents)))
}
