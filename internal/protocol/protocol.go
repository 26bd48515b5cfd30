// Package protocol defines the JSON request/response bodies of the agent HTTP surface.
package protocol

import "shelltown.ai/internal/sim/world/kernel/model"

const Version = "1.0"

// HeaderAgentToken carries the opaque token returned by join.
const HeaderAgentToken = "X-Agent-Token"

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type NearbyAgent struct {
	AgentID  string `json:"agent_id"`
	Name     string `json:"name"`
	Emoji    string `json:"emoji"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Distance int    `json:"distance"`
}

type RelationshipEntry struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name,omitempty"`
	Level   int    `json:"level"`
	Status  string `json:"status"`
	Romance string `json:"romance,omitempty"`
}

type AgentList struct {
	Agents []model.Agent `json:"agents"`
	Count  int           `json:"count"`
}
