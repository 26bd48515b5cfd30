package observerproto

import (
	"encoding/json"
	"time"

	"shelltown.ai/internal/sim/world/kernel/model"
)

// Version is the observer protocol version (separate from the agent HTTP protocol).
const Version = "1.0"

// Event types pushed to observers.
const (
	TypeWorldState    = "world_state"
	TypeAgentJoined   = "agent_joined"
	TypeAgentMoved    = "agent_moved"
	TypeAgentLeft     = "agent_left"
	TypeChat          = "chat"
	TypeAgentActivity = "agent_activity"
)

const (
	LeaveReasonLeft     = "left"
	LeaveReasonInactive = "inactive"
)

// Envelope is the only frame shape on the observer channel.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// First message after subscribe.
type WorldState struct {
	Version     string              `json:"protocol_version"`
	Agents      []model.Agent       `json:"agents"`
	ChatHistory []model.ChatMessage `json:"chat_history"`
	Width       int                 `json:"width"`
	Height      int                 `json:"height"`
}

type AgentJoined struct {
	Agent model.Agent `json:"agent"`
}

type AgentMoved struct {
	AgentID  string `json:"agent_id"`
	Name     string `json:"name"`
	Emoji    string `json:"emoji"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Location string `json:"location,omitempty"`
}

type AgentLeft struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Reason  string `json:"reason"`
}

// Chat events carry the stored message itself.
type Chat = model.ChatMessage

type AgentActivity struct {
	AgentID  string    `json:"agent_id"`
	Name     string    `json:"name"`
	Activity string    `json:"activity"`
	At       time.Time `json:"at"`
}

// Encode marshals data once into an envelope frame.
func Encode(typ string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Data: raw})
}
