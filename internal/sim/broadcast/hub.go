// Package broadcast fans encoded world events out to observer connections.
//
// Publishing never blocks longer than the per-subscriber send timeout; a subscriber
// that cannot take a frame in time is detached and its Done channel closed.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"shelltown.ai/internal/logging"
)

const (
	DefaultBuffer      = 256
	DefaultSendTimeout = 50 * time.Millisecond
)

type Subscription struct {
	ID uint64

	c    chan []byte
	done chan struct{}
	once sync.Once
}

// C yields frames in publish order. It is never closed; watch Done instead.
func (s *Subscription) C() <-chan []byte { return s.c }

func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() { s.once.Do(func() { close(s.done) }) }

type Hub struct {
	mu   sync.Mutex
	subs map[uint64]*Subscription

	nextID      atomic.Uint64
	buffer      int
	sendTimeout time.Duration
	log         *zap.Logger

	published atomic.Uint64
	dropped   atomic.Uint64
}

type Options struct {
	Buffer      int
	SendTimeout time.Duration
	Logger      *zap.Logger
}

func NewHub(opts Options) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	opts.Logger = logging.OrNop(opts.Logger)
	return &Hub{
		subs:        map[uint64]*Subscription{},
		buffer:      opts.Buffer,
		sendTimeout: opts.SendTimeout,
		log:         opts.Logger,
	}
}

// Subscribe registers a new observer whose first frame is initial (if non-nil).
func (h *Hub) Subscribe(initial []byte) *Subscription {
	s := &Subscription{
		ID:   h.nextID.Add(1),
		c:    make(chan []byte, h.buffer),
		done: make(chan struct{}),
	}
	if initial != nil {
		s.c <- initial
	}
	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()
	return s
}

func (h *Hub) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	h.mu.Lock()
	delete(h.subs, s.ID)
	h.mu.Unlock()
	s.close()
}

// Publish delivers msg to every current subscriber and returns how many were detached.
func (h *Hub) Publish(msg []byte) int {
	h.mu.Lock()
	targets := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.Unlock()
	h.published.Add(1)

	var timer *time.Timer
	detached := 0
	for _, s := range targets {
		select {
		case s.c <- msg:
			continue
		case <-s.done:
			continue
		default:
		}
		if timer == nil {
			timer = time.NewTimer(h.sendTimeout)
		} else {
			timer.Reset(h.sendTimeout)
		}
		select {
		case s.c <- msg:
			if !timer.Stop() {
				<-timer.C
			}
		case <-s.done:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
			h.Unsubscribe(s)
			h.dropped.Add(1)
			detached++
			h.log.Warn("observer detached: send timeout", zap.Uint64("sub", s.ID))
		}
	}
	return detached
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close detaches every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = map[uint64]*Subscription{}
	h.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}

type Stats struct {
	Subscribers int
	Published   uint64
	Dropped     uint64
}

func (h *Hub) Stats() Stats {
	return Stats{Subscribers: h.Len(), Published: h.published.Load(), Dropped: h.dropped.Load()}
}
