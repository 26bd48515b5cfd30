package world

import "sync/atomic"

// counters are written on the loop and read from any goroutine.
type counters struct {
	agents      atomic.Int64
	joins       atomic.Uint64
	leaves      atomic.Uint64
	evictions   atomic.Uint64
	moves       atomic.Uint64
	chats       atomic.Uint64
	rateLimited atomic.Uint64
	blocked     atomic.Uint64
	events      atomic.Uint64
	sinkErrors  atomic.Uint64
	panics      atomic.Uint64
}

type Metrics struct {
	Agents      int64  `json:"agents"`
	Observers   int    `json:"observers"`
	Joins       uint64 `json:"joins_total"`
	Leaves      uint64 `json:"leaves_total"`
	Evictions   uint64 `json:"evictions_total"`
	Moves       uint64 `json:"moves_total"`
	Chats       uint64 `json:"chats_total"`
	RateLimited uint64 `json:"rate_limited_total"`
	Blocked     uint64 `json:"blocked_total"`
	Events      uint64 `json:"events_total"`
	SinkErrors  uint64 `json:"sink_errors_total"`
	Panics      uint64 `json:"panics_total"`
	Dropped     uint64 `json:"observer_drops_total"`
}

// Metrics does not go through the loop, so it stays available while the loop is busy.
func (w *World) Metrics() Metrics {
	hs := w.hub.Stats()
	return Metrics{
		Agents:      w.stats.agents.Load(),
		Observers:   hs.Subscribers,
		Joins:       w.stats.joins.Load(),
		Leaves:      w.stats.leaves.Load(),
		Evictions:   w.stats.evictions.Load(),
		Moves:       w.stats.moves.Load(),
		Chats:       w.stats.chats.Load(),
		RateLimited: w.stats.rateLimited.Load(),
		Blocked:     w.stats.blocked.Load(),
		Events:      w.stats.events.Load(),
		SinkErrors:  w.stats.sinkErrors.Load(),
		Panics:      w.stats.panics.Load(),
		Dropped:     hs.Dropped,
	}
}
