// ABOUTME: HTTP API handlers for the conversation gateway
// ABOUTME: Query endpoints plus journal reads and health probes

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/parley-gateway/internal/auth"
	"github.com/2389/parley-gateway/internal/conversation"
	"github.com/2389/parley-gateway/internal/engine"
	"github.com/2389/parley-gateway/internal/store"
)

// maxBodyBytes bounds inbound JSON bodies.
const maxBodyBytes = 1 << 20

// QueryRequest is the JSON request body for the query endpoints.
type QueryRequest struct {
	Query         string `json:"query"`
	RequestID     string `json:"request_id,omitempty"`
	ResumeSession string `json:"resume_session,omitempty"`
	MaxTurns      int    `json:"max_turns,omitempty"`
	RenderHTML    bool   `json:"render_html,omitempty"`
}

// QueryResponse is the JSON response for /api/chat and /api/legal-query.
type QueryResponse struct {
	*conversation.Envelope
	ResponseHTML string `json:"response_html,omitempty"`
}

// ExchangeResponse is the JSON form of one journaled exchange.
type ExchangeResponse struct {
	ID              string        `json:"id"`
	RequestID       string        `json:"request_id"`
	Profile         string        `json:"profile"`
	Engine          string        `json:"engine"`
	Streaming       bool          `json:"streaming"`
	Principal       string        `json:"principal,omitempty"`
	ContinuationIn  string        `json:"continuation_in,omitempty"`
	ContinuationOut string        `json:"continuation_out,omitempty"`
	IsContinuation  bool          `json:"is_continuation"`
	Query           string        `json:"query"`
	ResponseChars   int           `json:"response_chars"`
	Status          string        `json:"status"`
	Error           string        `json:"error,omitempty"`
	StartedAt       string        `json:"started_at"`
	DurationMs      int64         `json:"duration_ms"`
	Usage           *engine.Usage `json:"usage"`
}

// ListExchangesResponse is the JSON response for GET /api/exchanges.
type ListExchangesResponse struct {
	Exchanges []ExchangeResponse `json:"exchanges"`
}

// sendJSON writes v as a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"detail": message})
}

// parseQueryRequest decodes a QueryRequest. Field validation is left to the
// conversation service so both endpoints share one set of rules.
func parseQueryRequest(w http.ResponseWriter, r *http.Request) (*QueryRequest, error) {
	var req QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body is required")
		}
		return nil, errors.New("invalid JSON body")
	}
	return &req, nil
}

func (req *QueryRequest) toConversation(r *http.Request) *conversation.QueryRequest {
	return &conversation.QueryRequest{
		Text:              req.Query,
		ClientRequestID:   req.RequestID,
		ContinuationToken: req.ResumeSession,
		TurnLimit:         req.MaxTurns,
		Principal:         auth.SubjectFromContext(r.Context()),
	}
}

// handleChat handles POST /api/chat on the chat profile.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	g.serveQuery(w, r, g.chat)
}

// handleLegalQuery handles POST /api/legal-query on the legal profile.
func (g *Gateway) handleLegalQuery(w http.ResponseWriter, r *http.Request) {
	g.serveQuery(w, r, g.legal)
}

func (g *Gateway) serveQuery(w http.ResponseWriter, r *http.Request, svc *conversation.Service) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseQueryRequest(w, r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	env, err := svc.Handle(r.Context(), req.toConversation(r))
	if err != nil {
		g.sendQueryError(w, r, err)
		return
	}

	resp := QueryResponse{Envelope: env}
	if req.RenderHTML {
		html, err := g.renderMarkdown(env.Response)
		if err != nil {
			g.logger.Warn("failed to render markdown", "request_id", env.RequestID, "error", err)
		} else {
			resp.ResponseHTML = html
		}
	}

	g.sendJSON(w, http.StatusOK, resp)
}

// sendQueryError maps conversation errors onto HTTP statuses.
func (g *Gateway) sendQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, conversation.ErrInvalidArgument):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrEngineFailure):
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
	case r.Context().Err() != nil:
		// Caller is gone; nobody is listening for a response.
	default:
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleListExchanges handles GET /api/exchanges.
// Supports ?limit=N, ?profile=X and ?session_id=Y.
func (g *Gateway) handleListExchanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.store == nil {
		g.sendJSONError(w, http.StatusNotFound, "exchange journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := store.ExchangeFilter{
		Profile:   q.Get("profile"),
		SessionID: q.Get("session_id"),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	exchanges, err := g.store.ListExchanges(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to list exchanges", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ListExchangesResponse{Exchanges: make([]ExchangeResponse, 0, len(exchanges))}
	for _, ex := range exchanges {
		resp.Exchanges = append(resp.Exchanges, exchangeToResponse(ex))
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleGetExchange handles GET /api/exchanges/{request_id}.
func (g *Gateway) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.store == nil {
		g.sendJSONError(w, http.StatusNotFound, "exchange journal is disabled")
		return
	}

	requestID := strings.TrimPrefix(r.URL.Path, "/api/exchanges/")
	if requestID == "" || strings.Contains(requestID, "/") {
		g.sendJSONError(w, http.StatusNotFound, "exchange not found")
		return
	}

	ex, err := g.store.GetExchange(r.Context(), requestID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "exchange not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get exchange", "request_id", requestID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, exchangeToResponse(ex))
}

func exchangeToResponse(ex *store.Exchange) ExchangeResponse {
	return ExchangeResponse{
		ID:              ex.ID,
		RequestID:       ex.RequestID,
		Profile:         ex.Profile,
		Engine:          ex.Engine,
		Streaming:       ex.Streaming,
		Principal:       ex.Principal,
		ContinuationIn:  ex.ContinuationIn,
		ContinuationOut: ex.ContinuationOut,
		IsContinuation:  ex.IsContinuation,
		Query:           ex.Query,
		ResponseChars:   ex.ResponseChars,
		Status:          string(ex.Status),
		Error:           ex.Error,
		StartedAt:       ex.StartedAt.UTC().Format(time.RFC3339Nano),
		DurationMs:      ex.Duration.Milliseconds(),
		Usage: &engine.Usage{
			InputTokens:      ex.InputTokens,
			OutputTokens:     ex.OutputTokens,
			CacheReadTokens:  ex.CacheReadTokens,
			CacheWriteTokens: ex.CacheWriteTokens,
			CostUSD:          ex.CostUSD,
		},
	}
}

// handleUsageStats handles GET /api/stats/usage.
// Supports ?since=RFC3339, ?until=RFC3339 and ?profile=X.
func (g *Gateway) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.store == nil {
		g.sendJSONError(w, http.StatusNotFound, "exchange journal is disabled")
		return
	}

	q := r.URL.Query()
	var filter store.UsageFilter
	if profile := q.Get("profile"); profile != "" {
		filter.Profile = &profile
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"since", &filter.Since},
		{"until", &filter.Until},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: use RFC3339", p.name))
			return
		}
		*p.dst = &t
	}

	stats, err := g.store.GetUsageStats(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to get usage stats", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusOK, stats)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady returns 200 OK if the engine reports it can serve requests.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if rc, ok := g.engine.(engine.ReadinessChecker); ok {
		if err := rc.Ready(r.Context()); err != nil {
			g.sendJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"engine": g.engine.Name(),
				"detail": err.Error(),
			})
			return
		}
	}
	g.sendJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"engine": g.engine.Name(),
	})
}
