package protocol

import (
	"time"

	"shelltown.ai/internal/sim/tuning"
	"shelltown.ai/internal/sim/world/kernel/model"
)

// POST /join
type JoinRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Emoji       string `json:"emoji,omitempty"`
	Sprite      string `json:"sprite,omitempty"`

	// SpawnX/SpawnY request a spawn tile; both must be set. Clamped to the map.
	SpawnX *int `json:"spawn_x,omitempty"`
	SpawnY *int `json:"spawn_y,omitempty"`
}

type JoinResponse struct {
	Success bool        `json:"success"`
	AgentID string      `json:"agent_id"`
	Token   string      `json:"token"`
	Agent   model.Agent `json:"agent"`
}

// POST /move. Direction is up|down|left|right|to; TargetX/TargetY apply to "to".
type MoveRequest struct {
	AgentID   string `json:"agent_id"`
	Direction string `json:"direction"`
	TargetX   *int   `json:"target_x,omitempty"`
	TargetY   *int   `json:"target_y,omitempty"`
}

type MoveResponse struct {
	Success       bool          `json:"success"`
	X             int           `json:"x"`
	Y             int           `json:"y"`
	AtDestination bool          `json:"at_destination,omitempty"`
	Location      string        `json:"location,omitempty"`
	Nearby        []NearbyAgent `json:"nearby_agents"`
}

// POST /chat
type ChatRequest struct {
	AgentID string `json:"agent_id"`
	Message string `json:"message"`
	To      string `json:"to,omitempty"`
}

type ChatResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
}

// POST /activity
type ActivityRequest struct {
	AgentID  string `json:"agent_id"`
	Activity string `json:"activity"`
}

type ActivityResponse struct {
	Success  bool        `json:"success"`
	Activity string      `json:"activity"`
	Needs    model.Needs `json:"needs"`
}

// DELETE /leave/{agentID}
type LeaveResponse struct {
	Success bool   `json:"success"`
	AgentID string `json:"agent_id"`
}

// GET /world
type WorldResponse struct {
	Agents      []model.Agent       `json:"agents"`
	ChatHistory []model.ChatMessage `json:"chat_history"`
	Width       int                 `json:"width"`
	Height      int                 `json:"height"`
	Timestamp   time.Time           `json:"timestamp"`
}

type RelationshipsResponse struct {
	AgentID       string              `json:"agent_id"`
	Friends       []string            `json:"friends"`
	Relationships []RelationshipEntry `json:"relationships"`
}

type FeedResponse struct {
	Entries []model.FeedEntry `json:"entries"`
}

type LocationsResponse struct {
	Locations []tuning.Location `json:"locations"`
}

type CharactersResponse struct {
	Sprites []string `json:"sprites"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	ProtocolVersion string `json:"protocol_version"`
	WorldID         string `json:"world_id"`
	Agents          int64  `json:"agents"`
}
