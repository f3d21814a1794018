package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"warm-transfer-service/internal/agents"
	"warm-transfer-service/internal/chat"
	"warm-transfer-service/internal/directory"
	"warm-transfer-service/internal/events"
	"warm-transfer-service/internal/matcher"
	"warm-transfer-service/internal/media"
	"warm-transfer-service/internal/notify"
	"warm-transfer-service/internal/queue"
	"warm-transfer-service/internal/stt"
	"warm-transfer-service/internal/stt/mock"
	"warm-transfer-service/internal/summary"
	"warm-transfer-service/internal/transcription"
	"warm-transfer-service/internal/transfer"
)

func newTestServer(t *testing.T) (*httptest.Server, *agents.Registry) {
	t.Helper()

	logger := zerolog.Nop()
	pub := events.New(&events.Config{Enabled: false})
	q := queue.New()
	reg := agents.New()
	hub := notify.NewHub(logger)
	platform := media.NewMemory()
	m := matcher.New(q, reg, platform, hub, pub, logger)
	reg.SetAvailableHook(func(agentID string) { m.TryMatch(agentID) })

	factory := func(ctx context.Context) (stt.Adapter, error) { return mock.New(), nil }
	transcripts := transcription.NewManager(factory, 0, pub, logger)

	dir := directory.New()
	orch := transfer.New(platform, summary.Static{}, dir, transcripts, nil, hub, pub, "https://example.com", logger)

	h := New(q, reg, m, transcripts, orch, dir, chat.Static{}, platform, nil, logger)
	srv := httptest.NewServer(NewRouter(h, nil))
	t.Cleanup(srv.Close)
	return srv, reg
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestEnqueueAndPosition(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/queue", map[string]string{"identity": "alice", "category": "billing"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enqueue status %d", resp.StatusCode)
	}
	var out struct {
		Position int `json:"position"`
	}
	decode(t, resp, &out)
	if out.Position != 1 {
		t.Errorf("expected position 1, got %d", out.Position)
	}

	resp = postJSON(t, srv.URL+"/api/queue", map[string]string{"identity": "bob"})
	decode(t, resp, &out)
	if out.Position != 2 {
		t.Errorf("expected position 2, got %d", out.Position)
	}

	// Duplicate enqueue is a conflict.
	resp = postJSON(t, srv.URL+"/api/queue", map[string]string{"identity": "alice"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate enqueue status %d", resp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/api/queue/bob")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, getResp, &out)
	if out.Position != 2 {
		t.Errorf("expected bob at position 2, got %d", out.Position)
	}

	getResp, _ = http.Get(srv.URL + "/api/queue/ghost")
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown identity status %d", getResp.StatusCode)
	}
}

func TestEnqueue_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/queue", map[string]string{"category": "billing"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing identity status %d", resp.StatusCode)
	}

	resp, err := http.Post(srv.URL+"/api/queue", "application/json", strings.NewReader("{broken"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status %d", resp.StatusCode)
	}
}

func TestAbandon(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/queue", map[string]string{"identity": "alice"}).Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/queue/alice", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("abandon status %d", resp.StatusCode)
	}

	// Abandoning again stays a no-op.
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("repeat abandon status %d", resp.StatusCode)
	}
}

func TestAgentStatus_InlineAssignment(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/queue", map[string]string{"identity": "alice", "category": "billing"}).Body.Close()

	resp := postJSON(t, srv.URL+"/api/agents/a1/status", map[string]string{"status": "available"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status update %d", resp.StatusCode)
	}
	var rec struct {
		Status          string `json:"status"`
		CurrentCustomer string `json:"currentCustomer"`
	}
	decode(t, resp, &rec)
	// The matcher hook ran before the response: the agent is already
	// bound to the waiting customer.
	if rec.Status != "busy" || rec.CurrentCustomer != "alice" {
		t.Errorf("expected inline assignment, got %+v", rec)
	}
}

func TestAgentStatus_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/agents/a1/status", map[string]string{"status": "busy"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("busy without customer status %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/agents/a1/status", map[string]string{"status": "meditating"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown status %d", resp.StatusCode)
	}
}

func TestAgentNext(t *testing.T) {
	srv, reg := newTestServer(t)

	// Nothing queued: 204.
	resp := postJSON(t, srv.URL+"/api/agents/a1/next", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("empty queue next status %d", resp.StatusCode)
	}

	postJSON(t, srv.URL+"/api/queue", map[string]string{"identity": "alice", "category": "tech"}).Body.Close()
	reg.SetStatus("a1", "available", "")

	// a1 got alice via the hook; a new customer for an explicit pull.
	postJSON(t, srv.URL+"/api/queue", map[string]string{"identity": "bob"}).Body.Close()
	reg.SetStatus("a2", "available", "")

	// bob was matched to a2 when a2 became available; queue is empty.
	resp = postJSON(t, srv.URL+"/api/agents/a2/next", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("drained queue next status %d", resp.StatusCode)
	}
	if got := reg.Get("a2"); got.CurrentCustomer != "bob" {
		t.Fatalf("expected bob bound to a2, got %+v", got)
	}

	// An explicit pull binds a re-available agent to the next customer.
	reg.SetStatus("a2", "offline", "")
	postJSON(t, srv.URL+"/api/queue", map[string]string{"identity": "carol"}).Body.Close()
	reg.SetStatus("a3", "offline", "")
	postJSON(t, srv.URL+"/api/agents/a3/next", nil).Body.Close()
	if got := reg.Get("a3"); got.CurrentCustomer != "" {
		t.Fatalf("offline agent must not be assigned, got %+v", got)
	}

	reg.SetStatus("a3", "available", "")
	if got := reg.Get("a3"); got.CurrentCustomer != "carol" {
		t.Fatalf("expected carol bound to a3, got %+v", got)
	}
}

func TestTransferLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/transfer", map[string]string{
		"room": "room1", "fromAgent": "a1", "category": "billing", "summary": "S",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("initiate status %d", resp.StatusCode)
	}
	var rec struct {
		TargetAgent string `json:"targetAgent"`
		Summary     string `json:"summary"`
		ReadyToJoin bool   `json:"readyToJoin"`
	}
	decode(t, resp, &rec)
	if rec.Summary != "S" || rec.ReadyToJoin {
		t.Fatalf("unexpected record %+v", rec)
	}

	// Not ready yet: conflict.
	getResp, _ := http.Get(srv.URL + "/api/transfer/" + rec.TargetAgent)
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusConflict {
		t.Errorf("pending before ready status %d", getResp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/transfer/"+rec.TargetAgent+"/ready", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mark ready status %d", resp.StatusCode)
	}

	getResp, _ = http.Get(srv.URL + "/api/transfer/" + rec.TargetAgent)
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("pending after ready status %d", getResp.StatusCode)
	}
	decode(t, getResp, &rec)
	if !rec.ReadyToJoin {
		t.Error("record should be ready to join")
	}

	resp = postJSON(t, srv.URL+"/api/transfer/"+rec.TargetAgent+"/complete", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d", resp.StatusCode)
	}

	getResp, _ = http.Get(srv.URL + "/api/transfer/" + rec.TargetAgent)
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("completed transfer should be gone, status %d", getResp.StatusCode)
	}
}

func TestTransfer_InputErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/transfer", map[string]string{"fromAgent": "a1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing room status %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/transfer/nobody/ready", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown slot status %d", resp.StatusCode)
	}
}

func TestTranscriptionOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/transcription/room1/start", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status %d", resp.StatusCode)
	}
	var out struct {
		Active bool `json:"active"`
	}
	decode(t, resp, &out)
	if !out.Active {
		t.Error("session should be active after start")
	}

	resp = postJSON(t, srv.URL+"/api/transcription/room1/stop", nil)
	decode(t, resp, &out)
	if out.Active {
		t.Error("session should be inactive after stop")
	}

	// Stop without a session is tolerated.
	resp = postJSON(t, srv.URL+"/api/transcription/ghost/stop", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stop absent session status %d", resp.StatusCode)
	}

	getResp, _ := http.Get(srv.URL + "/api/transcription/room1/summary")
	var text struct {
		Text string `json:"text"`
	}
	decode(t, getResp, &text)
	// The mock engine only emits on audio; no audio means no text.
	if text.Text != "" {
		t.Errorf("expected empty summary, got %q", text.Text)
	}
}

func TestRoomCreate(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/room/create", map[string]string{"identity": "a1", "type": "agent"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("agent room create status %d", resp.StatusCode)
	}
	var out struct {
		Room  string `json:"room"`
		Token string `json:"token"`
	}
	decode(t, resp, &out)
	if out.Room == "" || out.Token == "" {
		t.Errorf("expected room and token, got %+v", out)
	}

	resp = postJSON(t, srv.URL+"/api/room/create", map[string]string{"identity": "cust1", "type": "customer"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("customer room create status %d", resp.StatusCode)
	}
	var queued struct {
		Position int `json:"position"`
	}
	decode(t, resp, &queued)
	if queued.Position != 1 {
		t.Errorf("customer should be queued at 1, got %d", queued.Position)
	}

	resp = postJSON(t, srv.URL+"/api/room/create", map[string]string{"identity": "x", "type": "robot"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad type status %d", resp.StatusCode)
	}
}

func TestCallerContextEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := http.Get(srv.URL + "/api/caller-context?email=jordan.blake@example.com&type=investor")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lookup status %d", resp.StatusCode)
	}
	var ctx struct {
		Type    string `json:"type"`
		Summary string `json:"summary"`
	}
	decode(t, resp, &ctx)
	if ctx.Type != "investor" || ctx.Summary == "" {
		t.Errorf("unexpected context %+v", ctx)
	}

	resp, _ = http.Get(srv.URL + "/api/caller-context?email=nobody@example.com&type=investor")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown caller status %d", resp.StatusCode)
	}

	resp, _ = http.Get(srv.URL + "/api/caller-context")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing params status %d", resp.StatusCode)
	}
}

func TestChatEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/chat", map[string]any{
		"message":     "what is my portfolio worth?",
		"email":       "jordan.blake@example.com",
		"caller_type": "investor",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status %d", resp.StatusCode)
	}
	var out struct {
		Response string         `json:"response"`
		History  []chat.Message `json:"conversation_history"`
	}
	decode(t, resp, &out)
	if out.Response != chat.Fallback("investor") {
		t.Errorf("unexpected reply %q", out.Response)
	}
	// The history carries the caller turn and the reply in order.
	if len(out.History) != 2 || out.History[0].Role != "user" || out.History[1].Role != "assistant" {
		t.Fatalf("unexpected history %+v", out.History)
	}
	if out.History[1].Content != out.Response {
		t.Errorf("assistant turn %q should match the reply", out.History[1].Content)
	}

	// An unknown caller still gets a reply.
	resp = postJSON(t, srv.URL+"/api/chat", map[string]any{
		"message":     "hello",
		"email":       "stranger@example.com",
		"caller_type": "prospect",
	})
	decode(t, resp, &out)
	if out.Response != chat.Fallback("prospect") {
		t.Errorf("unexpected reply for unknown caller %q", out.Response)
	}

	resp = postJSON(t, srv.URL+"/api/chat", map[string]string{"caller_type": "prospect"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing message status %d", resp.StatusCode)
	}
}

func TestTwilioVoiceWebhook(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/twilio/voice?room=room1", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type %q", ct)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "room1") {
		t.Errorf("twiml missing room:\n%s", buf.String())
	}

	resp = postJSON(t, srv.URL+"/api/twilio/voice", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing room status %d", resp.StatusCode)
	}
}

func TestCallStatus_NotConfigured(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := http.Get(srv.URL + "/api/calls/CA123")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("expected 501 without a gateway, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status %d", path, resp.StatusCode)
		}
	}
}
