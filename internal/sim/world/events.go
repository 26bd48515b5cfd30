package world

import (
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"shelltown.ai/internal/observerproto"
	"shelltown.ai/internal/sim/world/kernel/model"
)

// EventLogEntry is one durable record of a world mutation. Data holds the same JSON that
// observers receive for Type.
type EventLogEntry struct {
	Type    string          `json:"type"`
	At      time.Time       `json:"at"`
	WorldID string          `json:"world_id"`
	AgentID string          `json:"agent_id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// EventSink receives every event after it is broadcast. WriteEvent runs on the world loop
// and must not block.
type EventSink interface {
	WriteEvent(e EventLogEntry) error
}

type nopSink struct{}

func (nopSink) WriteEvent(EventLogEntry) error { return nil }

// MultiSink fans one event out to several sinks and joins their errors.
type MultiSink []EventSink

func (m MultiSink) WriteEvent(e EventLogEntry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.WriteEvent(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// emit encodes data once, publishes the envelope to observers and hands it to the sink.
func (w *World) emit(typ string, a *model.Agent, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		w.log.Error("encode event", zap.String("type", typ), zap.Error(err))
		return
	}
	frame, err := json.Marshal(observerproto.Envelope{Type: typ, Data: raw})
	if err != nil {
		w.log.Error("encode envelope", zap.String("type", typ), zap.Error(err))
		return
	}
	if dropped := w.hub.Publish(frame); dropped > 0 {
		w.log.Debug("observers detached", zap.String("type", typ), zap.Int("dropped", dropped))
	}
	w.stats.events.Add(1)

	e := EventLogEntry{Type: typ, At: w.now().UTC(), WorldID: w.id, Data: raw}
	if a != nil {
		e.AgentID = a.ID
		e.Name = a.Name
	}
	if err := w.sink.WriteEvent(e); err != nil {
		w.stats.sinkErrors.Add(1)
		w.log.Warn("event sink", zap.String("type", typ), zap.Error(err))
	}
}

func (w *World) logFeed(typ string, data map[string]any) {
	w.feed.Push(model.FeedEntry{Type: typ, Data: data, Timestamp: w.now().UTC()})
}
