package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shelltown.ai/internal/protocol"
	"shelltown.ai/internal/sim/tuning"
	"shelltown.ai/internal/sim/world"
)

func testTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.MapWidth, t.MapHeight = 10, 10
	t.SpawnPolicy = "round_robin"
	t.SpawnPoints = [][2]int{{0, 0}}
	t.Cooldowns = tuning.Cooldowns{}
	t.Locations = nil
	return t
}

func newTestServer(t *testing.T, tun tuning.Tuning) http.Handler {
	t.Helper()
	w, err := world.New(world.Config{ID: "test", Tuning: tun, Seed: 1})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-w.Done()
	})
	return NewServer(w, Options{Gauges: func() map[string]uint64 {
		return map[string]uint64{"index_queue_depth": 0}
	}}).Router()
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set(protocol.HeaderAgentToken, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[protocol.ErrorResponse](t, rec).Error.Code
}

func join(t *testing.T, h http.Handler, name string) protocol.JoinResponse {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/join", "", protocol.JoinRequest{Name: name})
	if rec.Code != http.StatusOK {
		t.Fatalf("join %s: status=%d body=%s", name, rec.Code, rec.Body.String())
	}
	return decode[protocol.JoinResponse](t, rec)
}

func TestJoinMoveWithToken(t *testing.T) {
	h := newTestServer(t, testTuning())
	j := join(t, h, "Ann")
	if !j.Success || j.AgentID == "" || len(j.Token) < 32 {
		t.Fatalf("join response=%+v", j)
	}
	if j.Agent.ID != j.AgentID || j.Agent.Emoji == "" {
		t.Fatalf("agent=%+v", j.Agent)
	}

	mv := protocol.MoveRequest{AgentID: j.AgentID, Direction: "right"}
	if rec := call(t, h, http.MethodPost, "/move", "", mv); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d want=401", rec.Code)
	}
	if rec := call(t, h, http.MethodPost, "/move", "wrong", mv); rec.Code != http.StatusUnauthorized || errCode(t, rec) != protocol.ErrUnauthorized {
		t.Fatalf("bad token: status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec := call(t, h, http.MethodPost, "/move", j.Token, mv)
	if rec.Code != http.StatusOK {
		t.Fatalf("move: status=%d body=%s", rec.Code, rec.Body.String())
	}
	got := decode[protocol.MoveResponse](t, rec)
	if got.X != 1 || got.Y != 0 || got.Nearby == nil {
		t.Fatalf("move response=%+v", got)
	}

	x, y := 5, 5
	rec = call(t, h, http.MethodPost, "/move", j.Token, protocol.MoveRequest{AgentID: j.AgentID, Direction: "to", TargetX: &x, TargetY: &y})
	if rec.Code != http.StatusOK {
		t.Fatalf("move to: status=%d", rec.Code)
	}
	if got := decode[protocol.MoveResponse](t, rec); got.X+got.Y != 2 {
		t.Fatalf("one step toward (5,5) from (1,0) got (%d,%d)", got.X, got.Y)
	}
}

func TestJoinErrors(t *testing.T) {
	tun := testTuning()
	tun.MaxAgents = 2
	h := newTestServer(t, tun)
	join(t, h, "Ann")

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed", "{not json", http.StatusBadRequest, protocol.ErrProtoBadRequest},
		{"short name", protocol.JoinRequest{Name: "A"}, http.StatusBadRequest, protocol.ErrBadRequest},
		{"taken", protocol.JoinRequest{Name: "aNN"}, http.StatusConflict, protocol.ErrNameTaken},
	}
	for _, tc := range cases {
		rec := call(t, h, http.MethodPost, "/join", "", tc.body)
		if rec.Code != tc.status || errCode(t, rec) != tc.code {
			t.Fatalf("%s: status=%d body=%s want=%d %s", tc.name, rec.Code, rec.Body.String(), tc.status, tc.code)
		}
	}

	join(t, h, "Bea")
	rec := call(t, h, http.MethodPost, "/join", "", protocol.JoinRequest{Name: "Cat"})
	if rec.Code != http.StatusServiceUnavailable || errCode(t, rec) != protocol.ErrWorldFull {
		t.Fatalf("full: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestSpawnHint(t *testing.T) {
	h := newTestServer(t, testTuning())
	x, y := 4, 7
	rec := call(t, h, http.MethodPost, "/join", "", protocol.JoinRequest{Name: "Ann", SpawnX: &x, SpawnY: &y})
	j := decode[protocol.JoinResponse](t, rec)
	if j.Agent.X != 4 || j.Agent.Y != 7 {
		t.Fatalf("spawn=(%d,%d) want (4,7)", j.Agent.X, j.Agent.Y)
	}
}

func TestChatRateLimitRetryAfter(t *testing.T) {
	tun := testTuning()
	tun.Cooldowns.ChatMs = 60_000
	h := newTestServer(t, tun)
	j := join(t, h, "Ann")

	msg := protocol.ChatRequest{AgentID: j.AgentID, Message: "hello"}
	rec := call(t, h, http.MethodPost, "/chat", j.Token, msg)
	if rec.Code != http.StatusOK || decode[protocol.ChatResponse](t, rec).MessageID == "" {
		t.Fatalf("first chat: status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = call(t, h, http.MethodPost, "/chat", j.Token, msg)
	if rec.Code != http.StatusTooManyRequests || errCode(t, rec) != protocol.ErrRateLimit {
		t.Fatalf("second chat: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if ra := rec.Header().Get("Retry-After"); ra != "60" {
		t.Fatalf("Retry-After=%q want=60", ra)
	}

	rec = call(t, h, http.MethodPost, "/chat", j.Token, protocol.ChatRequest{AgentID: j.AgentID, Message: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty chat: status=%d", rec.Code)
	}
}

func TestUnknownAgentIsNotFound(t *testing.T) {
	h := newTestServer(t, testTuning())
	rec := call(t, h, http.MethodPost, "/move", "tok", protocol.MoveRequest{AgentID: "nope", Direction: "up"})
	if rec.Code != http.StatusNotFound || errCode(t, rec) != protocol.ErrNotFound {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := call(t, h, http.MethodGet, "/agent/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get agent: status=%d", rec.Code)
	}
	if rec := call(t, h, http.MethodGet, "/relationships/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("relationships: status=%d", rec.Code)
	}
	if rec := call(t, h, http.MethodPost, "/move", "tok", protocol.MoveRequest{Direction: "up"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing agent_id: status=%d", rec.Code)
	}
}

func TestLeaveThenGone(t *testing.T) {
	h := newTestServer(t, testTuning())
	j := join(t, h, "Ann")

	if rec := call(t, h, http.MethodDelete, "/leave/"+j.AgentID, "bad", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("leave bad token: status=%d", rec.Code)
	}
	rec := call(t, h, http.MethodDelete, "/leave/"+j.AgentID, j.Token, nil)
	if rec.Code != http.StatusOK || !decode[protocol.LeaveResponse](t, rec).Success {
		t.Fatalf("leave: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := call(t, h, http.MethodGet, "/agent/"+j.AgentID, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("after leave: status=%d", rec.Code)
	}
	list := decode[protocol.AgentList](t, call(t, h, http.MethodGet, "/agents", "", nil))
	if list.Count != 0 || list.Agents == nil {
		t.Fatalf("agents=%+v", list)
	}
	// The name is free again.
	join(t, h, "Ann")
}

func TestReadEndpoints(t *testing.T) {
	h := newTestServer(t, testTuning())
	j := join(t, h, "Ann")

	rec := call(t, h, http.MethodPost, "/activity", j.Token, protocol.ActivityRequest{AgentID: j.AgentID, Activity: "resting"})
	if rec.Code != http.StatusOK || decode[protocol.ActivityResponse](t, rec).Activity != "resting" {
		t.Fatalf("activity: status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = call(t, h, http.MethodPost, "/activity", j.Token, protocol.ActivityRequest{AgentID: j.AgentID, Activity: "flying"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad activity: status=%d", rec.Code)
	}

	wr := decode[protocol.WorldResponse](t, call(t, h, http.MethodGet, "/world?agent_id="+j.AgentID+"&radius=3", "", nil))
	if len(wr.Agents) != 1 || wr.Width != 10 || wr.Height != 10 || wr.ChatHistory == nil {
		t.Fatalf("world=%+v", wr)
	}
	if rec := call(t, h, http.MethodGet, "/world?radius=abc", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad radius: status=%d", rec.Code)
	}

	feed := decode[protocol.FeedResponse](t, call(t, h, http.MethodGet, "/feed?limit=10", "", nil))
	if len(feed.Entries) != 1 || feed.Entries[0].Type != "agent_joined" {
		t.Fatalf("feed=%+v", feed)
	}
	chars := decode[protocol.CharactersResponse](t, call(t, h, http.MethodGet, "/characters", "", nil))
	if len(chars.Sprites) != len(tuning.Defaults().Sprites) {
		t.Fatalf("sprites=%d", len(chars.Sprites))
	}
	locs := decode[protocol.LocationsResponse](t, call(t, h, http.MethodGet, "/locations", "", nil))
	if locs.Locations == nil || len(locs.Locations) != 0 {
		t.Fatalf("locations=%+v", locs)
	}

	health := decode[protocol.HealthResponse](t, call(t, h, http.MethodGet, "/healthz", "", nil))
	if health.Status != "ok" || health.ProtocolVersion != protocol.Version || health.WorldID != "test" || health.Agents != 1 {
		t.Fatalf("health=%+v", health)
	}
	body := call(t, h, http.MethodGet, "/metrics", "", nil).Body.String()
	for _, want := range []string{"shelltown_agents 1\n", "shelltown_joins_total 1\n", "shelltown_index_queue_depth 0\n"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestWriteErrorMapping(t *testing.T) {
	s := NewServer(nil, Options{})
	cases := []struct {
		err    error
		status int
	}{
		{world.ErrNotFound, http.StatusNotFound},
		{world.ErrNameTaken, http.StatusConflict},
		{world.ErrBlocked, http.StatusConflict},
		{world.ErrWorldFull, http.StatusServiceUnavailable},
		{world.ErrWorldStopped, http.StatusServiceUnavailable},
		{world.ErrValidation, http.StatusBadRequest},
		{world.ErrUnauthorized, http.StatusUnauthorized},
		{world.ErrInternal, http.StatusInternalServerError},
		{&world.Error{Code: protocol.ErrRateLimit, RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		s.writeError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: status=%d want=%d", tc.err, rec.Code, tc.status)
		}
		if code := errCode(t, rec); !protocol.IsKnownCode(code) || code == "" {
			t.Fatalf("%v: code=%q", tc.err, code)
		}
		if tc.status == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "2" {
			t.Fatalf("Retry-After=%q want=2", rec.Header().Get("Retry-After"))
		}
	}
}
