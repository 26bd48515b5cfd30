package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shelltown.ai/internal/protocol"
)

// client is a minimal agent-side binding of the HTTP surface.
type client struct {
	base  string
	http  *http.Client
	id    string
	token string
}

// apiError is a decoded error body plus the HTTP status and Retry-After.
type apiError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func newClient(base string) *client {
	return &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(protocol.HeaderAgentToken, c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var eb protocol.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		ae := &apiError{Status: resp.StatusCode, Code: eb.Error.Code, Message: eb.Error.Message}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if d, err := time.ParseDuration(ra + "s"); err == nil {
				ae.RetryAfter = d
			}
		}
		return ae
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) Join(ctx context.Context, req protocol.JoinRequest) (protocol.JoinResponse, error) {
	var out protocol.JoinResponse
	if err := c.do(ctx, http.MethodPost, "/join", req, &out); err != nil {
		return out, err
	}
	c.id, c.token = out.AgentID, out.Token
	return out, nil
}

func (c *client) Move(ctx context.Context, dir string) (protocol.MoveResponse, error) {
	var out protocol.MoveResponse
	err := c.do(ctx, http.MethodPost, "/move", protocol.MoveRequest{AgentID: c.id, Direction: dir}, &out)
	return out, err
}

func (c *client) MoveTo(ctx context.Context, x, y int) (protocol.MoveResponse, error) {
	var out protocol.MoveResponse
	err := c.do(ctx, http.MethodPost, "/move", protocol.MoveRequest{AgentID: c.id, Direction: "to", TargetX: &x, TargetY: &y}, &out)
	return out, err
}

func (c *client) Chat(ctx context.Context, text, to string) (string, error) {
	var out protocol.ChatResponse
	err := c.do(ctx, http.MethodPost, "/chat", protocol.ChatRequest{AgentID: c.id, Message: text, To: to}, &out)
	return out.MessageID, err
}

func (c *client) Locations(ctx context.Context) (protocol.LocationsResponse, error) {
	var out protocol.LocationsResponse
	err := c.do(ctx, http.MethodGet, "/locations", nil, &out)
	return out, err
}

func (c *client) Leave(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/leave/"+c.id, nil, nil)
}
