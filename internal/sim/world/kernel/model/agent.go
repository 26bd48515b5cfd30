package model

import (
	"fmt"
	"time"

	"shelltown.ai/internal/sim/world/logic/mathx"
	"shelltown.ai/internal/sim/world/logic/movement"
)

const (
	NeedMin = 0
	NeedMax = 100
)

type Need string

const (
	NeedSocial    Need = "social"
	NeedEnergy    Need = "energy"
	NeedFun       Need = "fun"
	NeedRomance   Need = "romance"
	NeedHunger    Need = "hunger"
	NeedHappiness Need = "happiness"
)

var AllNeeds = []Need{NeedSocial, NeedEnergy, NeedFun, NeedRomance, NeedHunger, NeedHappiness}

// Needs is the bounded attribute bag. Every value stays in [NeedMin, NeedMax].
type Needs struct {
	Social    float64 `json:"social"`
	Energy    float64 `json:"energy"`
	Fun       float64 `json:"fun"`
	Romance   float64 `json:"romance"`
	Hunger    float64 `json:"hunger"`
	Happiness float64 `json:"happiness"`
}

func DefaultNeeds() Needs {
	return Needs{Social: 50, Energy: 100, Fun: 50, Romance: 30, Hunger: 80, Happiness: 70}
}

func (n *Needs) ptr(k Need) *float64 {
	switch k {
	case NeedSocial:
		return &n.Social
	case NeedEnergy:
		return &n.Energy
	case NeedFun:
		return &n.Fun
	case NeedRomance:
		return &n.Romance
	case NeedHunger:
		return &n.Hunger
	case NeedHappiness:
		return &n.Happiness
	}
	return nil
}

func (n *Needs) Get(k Need) (float64, bool) {
	p := n.ptr(k)
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Adjust adds delta to k and clamps. It returns the new value.
func (n *Needs) Adjust(k Need, delta float64) (float64, error) {
	p := n.ptr(k)
	if p == nil {
		return 0, fmt.Errorf("unknown need %q", k)
	}
	*p = mathx.Clamp(*p+delta, NeedMin, NeedMax)
	return *p, nil
}

// Set stores v clamped to [NeedMin, NeedMax]. It reports false for an unknown need.
func (n *Needs) Set(k Need, v float64) bool {
	p := n.ptr(k)
	if p == nil {
		return false
	}
	*p = mathx.Clamp(v, NeedMin, NeedMax)
	return true
}

type Stats struct {
	LocationsVisited []string       `json:"locations_visited"`
	LocationVisits   map[string]int `json:"location_visits,omitempty"`
}

type Agent struct {
	ID          string `json:"agent_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Emoji       string `json:"emoji"`
	Sprite      string `json:"sprite"`

	// Token authenticates the owning client. It never leaves the process except in snapshots.
	Token string `json:"-"`

	X int `json:"x"`
	Y int `json:"y"`

	Needs    Needs  `json:"needs"`
	Mood     string `json:"mood"`
	Activity string `json:"activity"`
	Location string `json:"location,omitempty"`

	MoveCount    int `json:"move_count"`
	MessageCount int `json:"message_count"`

	Friends []string `json:"friends"`
	Stats   Stats    `json:"stats"`

	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
}

func (a *Agent) Pos() movement.Pos { return movement.Pos{X: a.X, Y: a.Y} }

func (a *Agent) SetPos(p movement.Pos) {
	a.X = p.X
	a.Y = p.Y
}

func (a *Agent) HasFriend(id string) bool {
	for _, f := range a.Friends {
		if f == id {
			return true
		}
	}
	return false
}

func (a *Agent) AddFriend(id string) bool {
	if id == "" || id == a.ID || a.HasFriend(id) {
		return false
	}
	a.Friends = append(a.Friends, id)
	return true
}

func (a *Agent) RemoveFriend(id string) {
	out := a.Friends[:0]
	for _, f := range a.Friends {
		if f != id {
			out = append(out, f)
		}
	}
	a.Friends = out
}

// Visit counts a visit to loc and reports whether it was the first one.
func (a *Agent) Visit(loc string) (first bool) {
	if a.Stats.LocationVisits == nil {
		a.Stats.LocationVisits = map[string]int{}
	}
	if a.Stats.LocationVisits[loc] == 0 {
		first = true
		a.Stats.LocationsVisited = append(a.Stats.LocationsVisited, loc)
	}
	a.Stats.LocationVisits[loc]++
	return first
}

// Clone returns a deep copy safe to hand outside the world loop.
func (a *Agent) Clone() Agent {
	c := *a
	c.Friends = append([]string(nil), a.Friends...)
	c.Stats.LocationsVisited = append([]string(nil), a.Stats.LocationsVisited...)
	if a.Stats.LocationVisits != nil {
		c.Stats.LocationVisits = make(map[string]int, len(a.Stats.LocationVisits))
		for k, v := range a.Stats.LocationVisits {
			c.Stats.LocationVisits[k] = v
		}
	}
	return c
}
