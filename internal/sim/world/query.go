package world

import (
	"context"
	"crypto/subtle"
	"sort"
	"time"

	"shelltown.ai/internal/protocol"
	"shelltown.ai/internal/sim/world/kernel/model"
	"shelltown.ai/internal/sim/world/logic/movement"
)

type QueryRequest struct {
	// AgentID and Radius together restrict Agents to those within Radius of AgentID.
	AgentID string
	Radius  int
}

type WorldView struct {
	Agents    []model.Agent
	Chat      []model.ChatMessage
	Width     int
	Height    int
	Timestamp time.Time
}

type Relationship struct {
	AgentID string
	Name    string
	Level   int
	Status  string
	Romance string
}

type RelationshipView struct {
	AgentID       string
	Friends       []string
	Relationships []Relationship
}

func RelationshipStatus(level int) string {
	switch {
	case level >= 75:
		return "best_friend"
	case level >= 50:
		return "friend"
	case level >= 25:
		return "acquaintance"
	default:
		return "stranger"
	}
}

func (w *World) Query(ctx context.Context, req QueryRequest) (WorldView, error) {
	var v WorldView
	err := w.do(ctx, func() error {
		var center *model.Agent
		if req.AgentID != "" && req.Radius > 0 {
			a, err := w.agent(req.AgentID)
			if err != nil {
				return err
			}
			center = a
		}
		v = WorldView{
			Agents:    w.agentList(center, req.Radius),
			Chat:      w.chat.Last(w.tun.QueryChatLimit),
			Width:     w.grid.Width(),
			Height:    w.grid.Height(),
			Timestamp: w.now().UTC(),
		}
		return nil
	})
	return v, err
}

// agentList returns deep copies sorted by join time then id. A nil center means all agents.
func (w *World) agentList(center *model.Agent, radius int) []model.Agent {
	out := make([]model.Agent, 0, len(w.agents))
	for _, a := range w.agents {
		if center != nil && movement.Manhattan(center.Pos(), a.Pos()) > radius {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (w *World) Agents(ctx context.Context) ([]model.Agent, error) {
	var out []model.Agent
	err := w.do(ctx, func() error {
		out = w.agentList(nil, 0)
		return nil
	})
	return out, err
}

func (w *World) Agent(ctx context.Context, agentID string) (model.Agent, error) {
	var out model.Agent
	err := w.do(ctx, func() error {
		a, err := w.agent(agentID)
		if err != nil {
			return err
		}
		out = a.Clone()
		return nil
	})
	return out, err
}

func (w *World) Relationships(ctx context.Context, agentID string) (RelationshipView, error) {
	var v RelationshipView
	err := w.do(ctx, func() error {
		a, err := w.agent(agentID)
		if err != nil {
			return err
		}
		v = RelationshipView{AgentID: a.ID, Friends: append([]string{}, a.Friends...), Relationships: []Relationship{}}
		for other, level := range w.rel[a.ID] {
			r := Relationship{AgentID: other, Level: level, Status: RelationshipStatus(level)}
			if o := w.agents[other]; o != nil {
				r.Name = o.Name
			}
			if rom, ok := w.romance[a.ID][other]; ok {
				r.Romance = rom.Status
			}
			v.Relationships = append(v.Relationships, r)
		}
		sort.Slice(v.Relationships, func(i, j int) bool {
			ri, rj := v.Relationships[i], v.Relationships[j]
			if ri.Level != rj.Level {
				return ri.Level > rj.Level
			}
			return ri.AgentID < rj.AgentID
		})
		return nil
	})
	return v, err
}

// Feed returns up to limit newest entries, oldest first. limit <= 0 means the whole feed.
func (w *World) Feed(ctx context.Context, limit int) ([]model.FeedEntry, error) {
	var out []model.FeedEntry
	err := w.do(ctx, func() error {
		if limit <= 0 {
			out = w.feed.All()
		} else {
			out = w.feed.Last(limit)
		}
		return nil
	})
	return out, err
}

// Authenticate checks the opaque token handed out at join.
func (w *World) Authenticate(ctx context.Context, agentID, token string) error {
	return w.do(ctx, func() error {
		a, err := w.agent(agentID)
		if err != nil {
			return err
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(a.Token), []byte(token)) != 1 {
			return errorf(protocol.ErrUnauthorized, "invalid agent token")
		}
		return nil
	})
}
