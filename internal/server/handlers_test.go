package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/balizero/reasoning-gateway/internal/breaker"
	"github.com/balizero/reasoning-gateway/internal/config"
	"github.com/balizero/reasoning-gateway/internal/domain"
	"github.com/balizero/reasoning-gateway/internal/gateway"
	"github.com/balizero/reasoning-gateway/internal/health"
	"github.com/balizero/reasoning-gateway/internal/knowledge"
	"github.com/balizero/reasoning-gateway/internal/pipeline"
	"github.com/balizero/reasoning-gateway/internal/router"
)

// echoProvider records the last request it saw and answers with fixed text.
type echoProvider struct {
	name     string
	text     string
	err      error
	lastSeen *domain.ProviderRequest
}

func (e *echoProvider) Name() string { return e.name }

func (e *echoProvider) Invoke(ctx context.Context, req *domain.ProviderRequest) (*domain.ProviderResponse, error) {
	e.lastSeen = req
	if e.err != nil {
		return nil, e.err
	}
	return &domain.ProviderResponse{
		Text:         e.text,
		FinishReason: "stop",
		Usage:        domain.Usage{PromptTokens: 5, CompletionTokens: 15},
	}, nil
}

func (e *echoProvider) Stream(ctx context.Context, req *domain.ProviderRequest) (<-chan domain.StreamEvent, error) {
	e.lastSeen = req
	if e.err != nil {
		return nil, e.err
	}
	ch := make(chan domain.StreamEvent, 2)
	ch <- domain.StreamEvent{ContentDelta: e.text}
	ch <- domain.StreamEvent{Usage: &domain.Usage{PromptTokens: 5, CompletionTokens: 15}}
	close(ch)
	return ch, nil
}

func (e *echoProvider) Ping(ctx context.Context) error { return e.err }

// instantClock fires retry waits immediately so failure paths do not sleep.
type instantClock struct{ now time.Time }

func (c *instantClock) Now() time.Time { return c.now }

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

type serverFixture struct {
	handler *Handler
	draft   *echoProvider
}

func newFixture(t *testing.T, draftErr error) *serverFixture {
	t.Helper()

	draft := &echoProvider{name: "draft", text: "The answer is 42.", err: draftErr}
	providers := map[string]domain.Provider{"draft": draft}

	breakers := breaker.NewRegistry(breaker.Options{FailureThreshold: 100, ResetTimeout: time.Minute})
	rt := router.New(config.TiersConfig{
		Balanced: []string{"draft"},
		Economy:  []string{"draft"},
	}, breakers)

	gw := gateway.New(gateway.Config{
		Providers: providers,
		Router:    rt,
		Breakers:  breakers,
	})

	p := pipeline.New(pipeline.Config{
		Gateway: gw,
		Clock:   &instantClock{now: time.Unix(1700000000, 0)},
		Retry:   pipeline.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	})

	agg := health.New(health.Config{
		Providers:     providers,
		Knowledge:     knowledge.NewStore(nil),
		Router:        rt,
		Breakers:      breakers,
		SynthesisTier: domain.TierEconomy,
	})

	limits := config.LimitsConfig{MaxQueryChars: 100, MaxHistoryMessages: 2}
	return &serverFixture{
		handler: NewHandler(p, agg, limits, slog.Default()),
		draft:   draft,
	}
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/reasoning/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandleQuery_Success(t *testing.T) {
	f := newFixture(t, nil)

	rec := postJSON(t, f.handler.HandleQuery, `{"query": "What is the answer?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Answer == "" {
		t.Error("empty answer")
	}
	if resp.Degraded {
		t.Error("degraded = true on healthy path")
	}
	if resp.ModelUsed == "" {
		t.Error("model_used not populated")
	}
}

func TestHandleQuery_MissingQuery(t *testing.T) {
	f := newFixture(t, nil)

	rec := postJSON(t, f.handler.HandleQuery, `{"tier": "balanced"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error response: %v", err)
	}
	if resp.Field != "query" {
		t.Errorf("Field = %q, want query", resp.Field)
	}
}

func TestHandleQuery_OversizedQueryRejected(t *testing.T) {
	f := newFixture(t, nil)

	long := strings.Repeat("x", 101)
	rec := postJSON(t, f.handler.HandleQuery, `{"query": "`+long+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if f.draft.lastSeen != nil {
		t.Error("provider was called for a rejected request")
	}
}

func TestHandleQuery_UnknownTierRejected(t *testing.T) {
	f := newFixture(t, nil)

	rec := postJSON(t, f.handler.HandleQuery, `{"query": "hi", "tier": "platinum"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleQuery_MalformedJSON(t *testing.T) {
	f := newFixture(t, nil)

	rec := postJSON(t, f.handler.HandleQuery, `{"query": `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleQuery_HistoryWindowed(t *testing.T) {
	f := newFixture(t, nil)

	body := `{"query": "latest", "conversation_history": [
		{"role": "user", "content": "one"},
		{"role": "assistant", "content": "two"},
		{"role": "user", "content": "three"},
		{"role": "assistant", "content": "four"}
	]}`
	rec := postJSON(t, f.handler.HandleQuery, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if f.draft.lastSeen == nil {
		t.Fatal("provider not called")
	}
	// Two retained history messages plus the query itself.
	if got := len(f.draft.lastSeen.Messages); got != 3 {
		t.Fatalf("provider saw %d messages, want 3", got)
	}
	if f.draft.lastSeen.Messages[0].Content != "three" {
		t.Errorf("oldest retained message = %q, want the most recent window", f.draft.lastSeen.Messages[0].Content)
	}
}

func TestHandleQuery_ReasoningFailureDegradesNotErrors(t *testing.T) {
	f := newFixture(t, &domain.TransientProviderError{Provider: "draft", Reason: "server_error"})

	rec := postJSON(t, f.handler.HandleQuery, `{"query": "anything"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with degraded answer; body %s", rec.Code, rec.Body.String())
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Degraded {
		t.Error("degraded = false, want templated fallback")
	}
	if resp.Answer == "" {
		t.Error("degraded response has no answer text")
	}
}

func TestHandleStream_EmitsEventsAndDone(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest("POST", "/reasoning/stream", strings.NewReader(`{"query": "stream me"}`))
	rec := httptest.NewRecorder()
	f.handler.HandleStream(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "data: {") {
		t.Errorf("no data frames in body: %q", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Errorf("no final done event in body: %q", body)
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Errorf("stream did not terminate with [DONE]: %q", body)
	}
}

func TestHandleStream_ValidationStillApplies(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest("POST", "/reasoning/stream", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	f.handler.HandleStream(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleHealth_Reports(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest("GET", "/health/reasoning", nil)
	rec := httptest.NewRecorder()
	f.handler.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap health.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(snap.Components) == 0 {
		t.Error("snapshot has no components")
	}
}

func TestHandleHealth_UnhealthyIs503(t *testing.T) {
	f := newFixture(t, context.DeadlineExceeded)

	req := httptest.NewRequest("GET", "/health/reasoning", nil)
	rec := httptest.NewRecorder()
	f.handler.HandleHealth(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
