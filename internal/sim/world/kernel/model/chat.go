package model

import "time"

type ChatMessage struct {
	ID        string    `json:"id"`
	FromID    string    `json:"from_id"`
	FromName  string    `json:"from_name"`
	FromEmoji string    `json:"from_emoji"`
	Text      string    `json:"message"`
	To        string    `json:"to,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
}

type FeedEntry struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

type Romance struct {
	Status string    `json:"status"`
	Since  time.Time `json:"since"`
}

// Ring keeps the newest Cap items in insertion order.
type Ring[T any] struct {
	Cap   int
	items []T
}

func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{Cap: capacity, items: make([]T, 0, capacity)}
}

func (r *Ring[T]) Push(v T) {
	if r.Cap <= 0 {
		return
	}
	if len(r.items) >= r.Cap {
		copy(r.items, r.items[1:])
		r.items = r.items[:len(r.items)-1]
	}
	r.items = append(r.items, v)
}

func (r *Ring[T]) Len() int { return len(r.items) }

// Last copies out the newest n items, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n <= 0 || len(r.items) == 0 {
		return []T{}
	}
	if n > len(r.items) {
		n = len(r.items)
	}
	out := make([]T, n)
	copy(out, r.items[len(r.items)-n:])
	return out
}

func (r *Ring[T]) All() []T { return r.Last(len(r.items)) }

func (r *Ring[T]) Reset(items []T) {
	r.items = r.items[:0]
	for _, v := range items {
		r.Push(v)
	}
}
