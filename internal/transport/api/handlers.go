package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"shelltown.ai/internal/protocol"
	"shelltown.ai/internal/sim/world"
	"shelltown.ai/internal/sim/world/logic/movement"
)

const requestTimeout = 5 * time.Second

func reqContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}

// authorize checks X-Agent-Token against agentID. It writes the error response itself.
func (s *Server) authorize(ctx context.Context, w http.ResponseWriter, r *http.Request, agentID string) bool {
	if strings.TrimSpace(agentID) == "" {
		writeErrorCode(w, protocol.ErrBadRequest, "agent_id is required")
		return false
	}
	if err := s.world.Authenticate(ctx, agentID, r.Header.Get(protocol.HeaderAgentToken)); err != nil {
		s.writeError(w, err)
		return false
	}
	return true
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:          "ok",
		ProtocolVersion: protocol.Version,
		WorldID:         s.world.ID(),
		Agents:          s.world.Metrics().Agents,
	})
}

// MetricsText serves counters in the Prometheus text exposition format.
func (s *Server) MetricsText(w http.ResponseWriter, r *http.Request) {
	m := s.world.Metrics()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	var b strings.Builder
	line := func(name string, v uint64) { fmt.Fprintf(&b, "shelltown_%s %d\n", name, v) }
	line("agents", uint64(m.Agents))
	line("observers", uint64(m.Observers))
	line("joins_total", m.Joins)
	line("leaves_total", m.Leaves)
	line("evictions_total", m.Evictions)
	line("moves_total", m.Moves)
	line("chats_total", m.Chats)
	line("rate_limited_total", m.RateLimited)
	line("blocked_total", m.Blocked)
	line("events_total", m.Events)
	line("sink_errors_total", m.SinkErrors)
	line("panics_total", m.Panics)
	line("observer_drops_total", m.Dropped)
	if s.gauges != nil {
		extra := s.gauges()
		names := make([]string, 0, len(extra))
		for k := range extra {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			line(k, extra[k])
		}
	}
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) Join(w http.ResponseWriter, r *http.Request) {
	var req protocol.JoinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := reqContext(r)
	defer cancel()

	jr := world.JoinRequest{
		Name:        req.Name,
		Description: req.Description,
		Emoji:       req.Emoji,
		Sprite:      req.Sprite,
	}
	if req.SpawnX != nil && req.SpawnY != nil {
		jr.Spawn = &movement.Pos{X: *req.SpawnX, Y: *req.SpawnY}
	}
	res, err := s.world.Join(ctx, jr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.JoinResponse{
		Success: true,
		AgentID: res.Agent.ID,
		Token:   res.Token,
		Agent:   res.Agent,
	})
}

func (s *Server) Move(w http.ResponseWriter, r *http.Request) {
	var req protocol.MoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := reqContext(r)
	defer cancel()
	if !s.authorize(ctx, w, r, req.AgentID) {
		return
	}

	mr := world.MoveRequest{AgentID: req.AgentID, Direction: strings.ToLower(strings.TrimSpace(req.Direction))}
	if req.TargetX != nil && req.TargetY != nil {
		mr.Target = &movement.Pos{X: *req.TargetX, Y: *req.TargetY}
	}
	res, err := s.world.Move(ctx, mr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	nearby := make([]protocol.NearbyAgent, 0, len(res.Nearby))
	for _, n := range res.Nearby {
		nearby = append(nearby, protocol.NearbyAgent{
			AgentID:  n.AgentID,
			Name:     n.Name,
			Emoji:    n.Emoji,
			X:        n.Pos.X,
			Y:        n.Pos.Y,
			Distance: n.Distance,
		})
	}
	writeJSON(w, http.StatusOK, protocol.MoveResponse{
		Success:       true,
		X:             res.Pos.X,
		Y:             res.Pos.Y,
		AtDestination: res.AtDestination,
		Location:      res.Location,
		Nearby:        nearby,
	})
}

func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := reqContext(r)
	defer cancel()
	if !s.authorize(ctx, w, r, req.AgentID) {
		return
	}
	id, err := s.world.Chat(ctx, world.ChatRequest{AgentID: req.AgentID, Text: req.Message, To: req.To})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.ChatResponse{Success: true, MessageID: id})
}

func (s *Server) Activity(w http.ResponseWriter, r *http.Request) {
	var req protocol.ActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := reqContext(r)
	defer cancel()
	if !s.authorize(ctx, w, r, req.AgentID) {
		return
	}
	needs, err := s.world.SetActivity(ctx, req.AgentID, req.Activity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.ActivityResponse{Success: true, Activity: req.Activity, Needs: needs})
}

func (s *Server) Leave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agentID")
	ctx, cancel := reqContext(r)
	defer cancel()
	if !s.authorize(ctx, w, r, id) {
		return
	}
	if err := s.world.Leave(ctx, id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.LeaveResponse{Success: true, AgentID: id})
}

func (s *Server) World(w http.ResponseWriter, r *http.Request) {
	q := world.QueryRequest{AgentID: r.URL.Query().Get("agent_id")}
	if raw := r.URL.Query().Get("radius"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErrorCode(w, protocol.ErrBadRequest, "radius must be a non-negative integer")
			return
		}
		q.Radius = n
	}
	ctx, cancel := reqContext(r)
	defer cancel()
	v, err := s.world.Query(ctx, q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.WorldResponse{
		Agents:      nonNil(v.Agents),
		ChatHistory: nonNil(v.Chat),
		Width:       v.Width,
		Height:      v.Height,
		Timestamp:   v.Timestamp,
	})
}

func (s *Server) Agents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqContext(r)
	defer cancel()
	list, err := s.world.Agents(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.AgentList{Agents: nonNil(list), Count: len(list)})
}

func (s *Server) Agent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqContext(r)
	defer cancel()
	a, err := s.world.Agent(ctx, chi.URLParam(r, "agentID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) Relationships(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqContext(r)
	defer cancel()
	v, err := s.world.Relationships(ctx, chi.URLParam(r, "agentID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := protocol.RelationshipsResponse{
		AgentID:       v.AgentID,
		Friends:       nonNil(v.Friends),
		Relationships: make([]protocol.RelationshipEntry, 0, len(v.Relationships)),
	}
	for _, rel := range v.Relationships {
		out.Relationships = append(out.Relationships, protocol.RelationshipEntry{
			AgentID: rel.AgentID,
			Name:    rel.Name,
			Level:   rel.Level,
			Status:  rel.Status,
			Romance: rel.Romance,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) Locations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.LocationsResponse{Locations: nonNil(s.world.Locations())})
}

func (s *Server) Feed(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorCode(w, protocol.ErrBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	ctx, cancel := reqContext(r)
	defer cancel()
	entries, err := s.world.Feed(ctx, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FeedResponse{Entries: nonNil(entries)})
}

func (s *Server) Characters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.CharactersResponse{Sprites: nonNil(s.world.Tuning().Sprites)})
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
