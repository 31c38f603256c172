// ABOUTME: Tests for HTTP API handlers of the conversation gateway
// ABOUTME: Runs requests through the full mux with a scripted engine

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley-gateway/internal/auth"
	"github.com/2389/parley-gateway/internal/config"
	"github.com/2389/parley-gateway/internal/engine"
	"github.com/2389/parley-gateway/internal/engine/enginetest"
)

const testJWTSecret = "gateway-test-secret-at-least-32b"

// testConfig builds a config through the real parser so defaults apply.
func testConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()

	cfg, err := config.Parse([]byte("server:\n  http_addr: \"127.0.0.1:0\"\nengine:\n  kind: demo\n"), "yaml")
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, eng engine.Engine, mutate func(*config.Config)) *Gateway {
	t.Helper()

	gw, err := New(testConfig(t, mutate), testLogger(), WithEngine(eng))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.closeStore() })
	return gw
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func TestHandleChat_ResumeSession(t *testing.T) {
	eng := enginetest.New(enginetest.WithEvents(enginetest.Fragments("Hi", " there")))
	gw := newTestGateway(t, eng, nil)

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/chat",
		QueryRequest{Query: "Hello", ResumeSession: "abc-123"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody(t, rec)
	assert.Equal(t, "abc-123", body["session_id"])
	assert.Equal(t, "Hi there", body["response"])
	assert.Equal(t, true, body["is_continuation"])
	assert.Equal(t, "Hello", body["query"])
	assert.NotEmpty(t, body["request_id"])
	assert.NotContains(t, body, "messages")
	assert.NotContains(t, body, "response_html")

	calls := eng.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, config.DefaultChatTurnLimit, calls[0].Config.TurnLimit)
	assert.Equal(t, config.DefaultChatInstructions, calls[0].Config.Instructions)
}

func TestHandleChat_NewSession(t *testing.T) {
	eng := enginetest.New(enginetest.WithEvents(
		enginetest.Fragments("Hello!"),
		&engine.Event{Kind: engine.KindResult, SessionID: "xyz-9"},
	))
	gw := newTestGateway(t, eng, nil)

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/chat",
		QueryRequest{Query: "Hello", RequestID: "client-1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "xyz-9", body["session_id"])
	assert.Equal(t, false, body["is_continuation"])
	assert.Equal(t, "client-1", body["request_id"])
}

func TestHandleChat_BlankQuery(t *testing.T) {
	eng := enginetest.New()
	gw := newTestGateway(t, eng, nil)

	for _, q := range []string{"", "   ", "\n\t"} {
		rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/chat", QueryRequest{Query: q}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decodeBody(t, rec)["detail"])
	}
	assert.Zero(t, eng.CallCount())
}

func TestHandleChat_MalformedBody(t *testing.T) {
	gw := newTestGateway(t, enginetest.New(), nil)

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/chat", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON body", decodeBody(t, rec)["detail"])

	rec = doRequest(t, gw.Handler(), http.MethodPost, "/api/chat", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body is required", decodeBody(t, rec)["detail"])
}

func TestHandleChat_MethodNotAllowed(t *testing.T) {
	gw := newTestGateway(t, enginetest.New(), nil)

	rec := doRequest(t, gw.Handler(), http.MethodGet, "/api/chat", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleChat_EngineFailure(t *testing.T) {
	eng := enginetest.New(
		enginetest.WithEvents(enginetest.Fragments("partial answer")),
		enginetest.WithFailureAfter(1, errors.New("claude exited with status 1")),
	)
	gw := newTestGateway(t, eng, nil)

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/chat", QueryRequest{Query: "Hello"}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	assert.Contains(t, body["detail"], "claude exited with status 1")
	assert.NotContains(t, body, "response")
	assert.NotContains(t, rec.Body.String(), "partial answer")
}

func TestHandleChat_DebugMessages(t *testing.T) {
	eng := enginetest.New(enginetest.WithEvents(enginetest.Session("s-1"), enginetest.Fragments("hi")))
	gw := newTestGateway(t, eng, func(c *config.Config) { c.Debug.IncludeMessages = true })

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/chat", QueryRequest{Query: "Hello"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	messages, ok := decodeBody(t, rec)["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestHandleChat_RenderHTML(t *testing.T) {
	eng := enginetest.New(enginetest.WithEvents(enginetest.Fragments("# Risks\n\n", "**Clause 4** is vague.\n\n<script>x</script>")))
	gw := newTestGateway(t, eng, nil)

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/chat",
		QueryRequest{Query: "Review", RenderHTML: true}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	html, _ := decodeBody(t, rec)["response_html"].(string)
	assert.Contains(t, html, "<h1>Risks</h1>")
	assert.Contains(t, html, "<strong>Clause 4</strong>")
	assert.NotContains(t, html, "<script>")
}

func TestHandleLegalQuery_Profile(t *testing.T) {
	eng := enginetest.New(enginetest.WithEvents(enginetest.Fragments("analysis")))
	gw := newTestGateway(t, eng, nil)

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/legal-query", QueryRequest{Query: "Review this NDA"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "analysis", decodeBody(t, rec)["response"])

	rec = doRequest(t, gw.Handler(), http.MethodPost, "/api/legal-query", QueryRequest{Query: "Again", MaxTurns: 5}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, gw.Handler(), http.MethodPost, "/api/legal-query", QueryRequest{Query: "Short", MaxTurns: 1}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	calls := eng.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, config.DefaultLegalTurnLimit, calls[0].Config.TurnLimit)
	assert.Equal(t, config.DefaultLegalInstructions, calls[0].Config.Instructions)
	assert.Equal(t, config.DefaultLegalMaxTurnLimit, calls[1].Config.TurnLimit, "clamped to profiles.legal.max_turn_limit")
	assert.Equal(t, 1, calls[2].Config.TurnLimit)

	rec = doRequest(t, gw.Handler(), http.MethodPost, "/api/legal-query", QueryRequest{Query: "x", MaxTurns: -3}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_IgnoresMaxTurns(t *testing.T) {
	eng := enginetest.New(enginetest.WithEvents(enginetest.Fragments("ok")))
	gw := newTestGateway(t, eng, nil)

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/chat", QueryRequest{Query: "Hello", MaxTurns: 1000000}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	calls := eng.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, config.DefaultChatTurnLimit, calls[0].Config.TurnLimit)
}

func TestHealth(t *testing.T) {
	gw := newTestGateway(t, enginetest.New(), nil)

	rec := doRequest(t, gw.Handler(), http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "ok"}, decodeBody(t, rec))

	rec = doRequest(t, gw.Handler(), http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeBody(t, rec)["status"])
}

// notReadyEngine reports a readiness failure.
type notReadyEngine struct {
	*enginetest.Engine
}

func (notReadyEngine) Ready(context.Context) error { return errors.New("claude CLI not available") }

func TestHealthReady_EngineUnavailable(t *testing.T) {
	gw := newTestGateway(t, notReadyEngine{enginetest.New()}, nil)

	rec := doRequest(t, gw.Handler(), http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "unavailable", body["status"])
	assert.Contains(t, body["detail"], "not available")
}

func TestAuth_ProtectsAPI(t *testing.T) {
	eng := enginetest.New(enginetest.WithEvents(enginetest.Fragments("ok")))
	gw := newTestGateway(t, eng, func(c *config.Config) {
		c.Auth.JWTSecret = testJWTSecret
		c.Database.Path = ":memory:"
	})

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/chat", QueryRequest{Query: "Hello"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, eng.CallCount())

	// Health stays open
	rec = doRequest(t, gw.Handler(), http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	v, err := auth.NewJWTVerifier([]byte(testJWTSecret))
	require.NoError(t, err)
	token, err := v.Generate("alice", time.Hour)
	require.NoError(t, err)
	header := http.Header{"Authorization": {"Bearer " + token}}

	rec = doRequest(t, gw.Handler(), http.MethodPost, "/api/chat", QueryRequest{Query: "Hello", RequestID: "r-auth"}, header)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, gw.Handler(), http.MethodGet, "/api/exchanges/r-auth", nil, header)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decodeBody(t, rec)["principal"])
}

func TestExchanges(t *testing.T) {
	eng := enginetest.New(enginetest.WithEvents(
		enginetest.Fragments("answer"),
		&engine.Event{Kind: engine.KindResult, SessionID: "sess-1", Usage: &engine.Usage{InputTokens: 7, OutputTokens: 3}},
	))
	gw := newTestGateway(t, eng, func(c *config.Config) { c.Database.Path = ":memory:" })
	h := gw.Handler()

	require.Equal(t, http.StatusOK, doRequest(t, h, http.MethodPost, "/api/chat", QueryRequest{Query: "one", RequestID: "r-1"}, nil).Code)
	require.Equal(t, http.StatusOK, doRequest(t, h, http.MethodPost, "/api/legal-query", QueryRequest{Query: "two", RequestID: "r-2"}, nil).Code)

	rec := doRequest(t, h, http.MethodGet, "/api/exchanges", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListExchangesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Exchanges, 2)

	rec = doRequest(t, h, http.MethodGet, "/api/exchanges?profile=legal", nil, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Exchanges, 1)
	assert.Equal(t, "r-2", list.Exchanges[0].RequestID)

	rec = doRequest(t, h, http.MethodGet, "/api/exchanges?limit=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/exchanges/r-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ex ExchangeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ex))
	assert.Equal(t, "chat", ex.Profile)
	assert.Equal(t, "ok", ex.Status)
	assert.Equal(t, "sess-1", ex.ContinuationOut)
	assert.Equal(t, int64(7), ex.Usage.InputTokens)

	rec = doRequest(t, h, http.MethodGet, "/api/exchanges/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/stats/usage", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody(t, rec)
	assert.Equal(t, float64(2), stats["request_count"])
	assert.Equal(t, float64(20), stats["total_tokens"])

	rec = doRequest(t, h, http.MethodGet, "/api/stats/usage?since=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExchanges_JournalDisabled(t *testing.T) {
	gw := newTestGateway(t, enginetest.New(), nil)

	for _, path := range []string{"/api/exchanges", "/api/exchanges/r-1", "/api/stats/usage"} {
		rec := doRequest(t, gw.Handler(), http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "exchange journal is disabled", decodeBody(t, rec)["detail"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	eng := enginetest.New(enginetest.WithEvents(enginetest.Fragments("a", "b")))
	gw := newTestGateway(t, eng, func(c *config.Config) { c.Metrics.Enabled = true })

	require.Equal(t, http.StatusOK, doRequest(t, gw.Handler(), http.MethodPost, "/api/chat", QueryRequest{Query: "q"}, nil).Code)

	rec := doRequest(t, gw.Handler(), http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `parley_exchanges_total{outcome="ok",profile="chat"} 1`)
	assert.Contains(t, body, `parley_fragments_total{profile="chat"} 2`)
	assert.Contains(t, body, `route="/api/chat"`)
}
