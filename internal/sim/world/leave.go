package world

import (
	"context"

	"go.uber.org/zap"

	"shelltown.ai/internal/observerproto"
)

func (w *World) Leave(ctx context.Context, agentID string) error {
	return w.do(ctx, func() error {
		if w.agents[agentID] == nil {
			return notFound(agentID)
		}
		w.depart(agentID, observerproto.LeaveReasonLeft)
		w.hintSave()
		return nil
	})
}

// depart removes the agent and all state keyed by it, then announces it once.
func (w *World) depart(agentID, reason string) {
	a := w.removeAgent(agentID)
	if a == nil {
		return
	}
	w.stats.leaves.Add(1)
	w.logFeed("agent_left", map[string]any{"agent_id": a.ID, "agent_name": a.Name, "reason": reason})
	w.emit(observerproto.TypeAgentLeft, a, observerproto.AgentLeft{AgentID: a.ID, Name: a.Name, Reason: reason})
	w.log.Info("agent left", zap.String("agent_id", a.ID), zap.String("name", a.Name), zap.String("reason", reason))
}
