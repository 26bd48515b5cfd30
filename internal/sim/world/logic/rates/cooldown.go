package rates

import "time"

type Kind string

const (
	KindMove Kind = "move"
	KindChat Kind = "chat"
)

// Limiter enforces a minimum interval between allowed actions per (agent, kind).
// It is not safe for concurrent use; the world loop owns it.
type Limiter struct {
	cooldowns map[Kind]time.Duration
	last      map[string]map[Kind]time.Time
}

func NewLimiter(cooldowns map[Kind]time.Duration) *Limiter {
	cd := make(map[Kind]time.Duration, len(cooldowns))
	for k, v := range cooldowns {
		cd[k] = v
	}
	return &Limiter{cooldowns: cd, last: map[string]map[Kind]time.Time{}}
}

// Allow records now as the last allowed time when it returns true.
// Kinds without a positive cooldown are always allowed and leave no state.
func (l *Limiter) Allow(agentID string, kind Kind, now time.Time) bool {
	cd := l.cooldowns[kind]
	if cd <= 0 {
		return true
	}
	byKind := l.last[agentID]
	if prev, ok := byKind[kind]; ok && now.Sub(prev) < cd {
		return false
	}
	if byKind == nil {
		byKind = map[Kind]time.Time{}
		l.last[agentID] = byKind
	}
	byKind[kind] = now
	return true
}

// Remaining reports how long until Allow would succeed.
func (l *Limiter) Remaining(agentID string, kind Kind, now time.Time) time.Duration {
	cd := l.cooldowns[kind]
	prev, ok := l.last[agentID][kind]
	if cd <= 0 || !ok {
		return 0
	}
	if d := cd - now.Sub(prev); d > 0 {
		return d
	}
	return 0
}

func (l *Limiter) Forget(agentID string) { delete(l.last, agentID) }

func (l *Limiter) Reset() { l.last = map[string]map[Kind]time.Time{} }

func (l *Limiter) Len() int { return len(l.last) }
