package tuning

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	MapWidth  int `yaml:"map_width"`
	MapHeight int `yaml:"map_height"`
	MaxAgents int `yaml:"max_agents"`

	// CollisionMap is an optional path to a {width,height,data} tile layer.
	CollisionMap string `yaml:"collision_map"`

	SpawnPolicy string   `yaml:"spawn_policy"` // random | round_robin
	SpawnPoints [][2]int `yaml:"spawn_points"`

	Cooldowns Cooldowns `yaml:"cooldowns"`

	Chat Chat `yaml:"chat"`

	NearbyRadius    int `yaml:"nearby_radius"`
	QueryChatLimit  int `yaml:"query_chat_limit"`
	FeedSize        int `yaml:"feed_size"`
	PathMaxExpanded int `yaml:"path_max_expanded"`

	Maintenance Maintenance `yaml:"maintenance"`

	Locations  []Location `yaml:"locations"`
	Activities []string   `yaml:"activities"`
	Moods      []string   `yaml:"moods"`
	Sprites    []string   `yaml:"sprites"`
}

type Cooldowns struct {
	MoveMs int `yaml:"move_ms"`
	ChatMs int `yaml:"chat_ms"`
}

type Chat struct {
	HistorySize  int `yaml:"history_size"`
	MaxLen       int `yaml:"max_len"`
	HearRadius   int `yaml:"hear_radius"`
	SaveEveryN   int `yaml:"save_every_n"`
	FriendAt     int `yaml:"friend_at"`
	SnapshotTail int `yaml:"snapshot_tail"`
}

type Maintenance struct {
	EvictEverySec    int     `yaml:"evict_every_sec"`
	InactiveAfterSec int     `yaml:"inactive_after_sec"`
	SnapshotEverySec int     `yaml:"snapshot_every_sec"`
	DecayEverySec    int     `yaml:"decay_every_sec"`
	DecayEnergy      float64 `yaml:"decay_energy"`
	DecaySocial      float64 `yaml:"decay_social"`
}

type Location struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Emoji  string `yaml:"emoji" json:"emoji"`
	X      int    `yaml:"x" json:"x"`
	Y      int    `yaml:"y" json:"y"`
	Radius int    `yaml:"radius" json:"radius"`
	Effect string `yaml:"effect" json:"effect"`
}

func (c Cooldowns) Move() time.Duration { return time.Duration(c.MoveMs) * time.Millisecond }
func (c Cooldowns) Chat() time.Duration { return time.Duration(c.ChatMs) * time.Millisecond }

func (m Maintenance) EvictEvery() time.Duration    { return secs(m.EvictEverySec) }
func (m Maintenance) InactiveAfter() time.Duration { return secs(m.InactiveAfterSec) }
func (m Maintenance) SnapshotEvery() time.Duration { return secs(m.SnapshotEverySec) }
func (m Maintenance) DecayEvery() time.Duration    { return secs(m.DecayEverySec) }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func Defaults() Tuning {
	return Tuning{
		MapWidth:    140,
		MapHeight:   100,
		MaxAgents:   100,
		SpawnPolicy: "random",
		SpawnPoints: [][2]int{
			{58, 52}, {75, 52}, {42, 52}, {58, 68},
			{85, 52}, {50, 72}, {70, 72}, {65, 45},
		},
		Cooldowns: Cooldowns{MoveMs: 200, ChatMs: 2000},
		Chat: Chat{
			HistorySize:  100,
			MaxLen:       500,
			HearRadius:   10,
			SaveEveryN:   10,
			FriendAt:     50,
			SnapshotTail: 50,
		},
		NearbyRadius:    5,
		QueryChatLimit:  20,
		FeedSize:        200,
		PathMaxExpanded: 500,
		Maintenance: Maintenance{
			EvictEverySec:    60,
			InactiveAfterSec: 300,
			SnapshotEverySec: 300,
			DecayEverySec:    60,
			DecayEnergy:      1,
			DecaySocial:      0.5,
		},
		Locations: []Location{
			{ID: "town_square", Name: "Town Square", Emoji: "🏛️", X: 58, Y: 52, Radius: 8, Effect: "social"},
			{ID: "cafe", Name: "Cozy Café", Emoji: "☕", X: 75, Y: 45, Radius: 5, Effect: "food"},
			{ID: "park", Name: "Sunny Park", Emoji: "🌳", X: 42, Y: 60, Radius: 10, Effect: "fun"},
			{ID: "library", Name: "Old Library", Emoji: "📚", X: 85, Y: 55, Radius: 5, Effect: "thinking"},
			{ID: "club", Name: "Night Club", Emoji: "🎵", X: 68, Y: 72, Radius: 6, Effect: "fun"},
			{ID: "beach", Name: "Pixel Beach", Emoji: "🏖️", X: 35, Y: 48, Radius: 8, Effect: "relax"},
			{ID: "garden", Name: "Rose Garden", Emoji: "🌹", X: 50, Y: 68, Radius: 5, Effect: "romantic"},
			{ID: "plaza", Name: "Market Plaza", Emoji: "🛒", X: 62, Y: 58, Radius: 6, Effect: "social"},
		},
		Activities: []string{"exploring", "chatting", "resting", "thinking", "socializing", "dating", "partying", "working"},
		Moods:      []string{"happy", "curious", "excited", "relaxed", "friendly", "romantic", "lonely", "energetic"},
		Sprites: []string{
			"Abigail_Chen", "Adam_Smith", "Arthur_Burton", "Ayesha_Khan",
			"Carlos_Gomez", "Carmen_Ortiz", "Eddy_Lin", "Francisco_Lopez",
			"Giorgio_Rossi", "Hailey_Johnson", "Isabella_Rodriguez", "Jane_Moreno",
			"Jennifer_Moore", "John_Lin", "Klaus_Mueller", "Latoya_Williams",
			"Maria_Lopez", "Mei_Lin", "Rajiv_Patel", "Ryan_Park",
			"Sam_Moore", "Tamara_Taylor", "Tom_Moreno", "Wolfgang_Schulz", "Yuriko_Yamamoto",
		},
	}
}

// Load decodes path over Defaults(), so a partial file only overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.MapWidth <= 0 || t.MapHeight <= 0 {
		errs = append(errs, fmt.Errorf("map size must be positive (got %dx%d)", t.MapWidth, t.MapHeight))
	}
	if t.MaxAgents <= 0 {
		errs = append(errs, errors.New("max_agents must be positive"))
	}
	switch t.SpawnPolicy {
	case "", "random", "round_robin":
	default:
		errs = append(errs, fmt.Errorf("unknown spawn_policy %q", t.SpawnPolicy))
	}
	if len(t.SpawnPoints) == 0 {
		errs = append(errs, errors.New("spawn_points must not be empty"))
	}
	for _, p := range t.SpawnPoints {
		if p[0] < 0 || p[1] < 0 || p[0] >= t.MapWidth || p[1] >= t.MapHeight {
			errs = append(errs, fmt.Errorf("spawn point %v outside map", p))
		}
	}
	if t.Cooldowns.MoveMs < 0 || t.Cooldowns.ChatMs < 0 {
		errs = append(errs, errors.New("cooldowns must be >= 0"))
	}
	if t.Chat.HistorySize <= 0 || t.Chat.MaxLen <= 0 {
		errs = append(errs, errors.New("chat history_size and max_len must be positive"))
	}
	if t.FeedSize <= 0 {
		errs = append(errs, errors.New("feed_size must be positive"))
	}
	seen := map[string]bool{}
	for _, l := range t.Locations {
		if l.ID == "" || seen[l.ID] {
			errs = append(errs, fmt.Errorf("location id %q empty or duplicated", l.ID))
		}
		seen[l.ID] = true
	}
	if len(t.Activities) == 0 || len(t.Moods) == 0 || len(t.Sprites) == 0 {
		errs = append(errs, errors.New("activities, moods and sprites must not be empty"))
	}
	return errors.Join(errs...)
}
