// ABOUTME: Server-Sent Events streaming for the legal query endpoint
// ABOUTME: Forwards fragments as data frames and ends with a done or error frame

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/parley-gateway/internal/conversation"
)

// StreamFrame is the JSON payload of one SSE data line.
type StreamFrame struct {
	Text      string `json:"text,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// sseWriter writes frames to a streaming response. Headers are sent lazily so
// validation errors can still be answered with a plain JSON error.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

// write sends one frame as "data: <json>\n\n" and flushes it.
func (s *sseWriter) write(frame StreamFrame) error {
	s.start()

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Fragment implements conversation.Sink.
func (s *sseWriter) Fragment(text string) error {
	return s.write(StreamFrame{Text: text})
}

// handleLegalQueryStream handles POST /api/legal-query-stream.
func (g *Gateway) handleLegalQueryStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseQueryRequest(w, r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Check streaming support before calling the engine (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sse := &sseWriter{w: w, flusher: flusher}
	res, err := g.legal.Stream(r.Context(), req.toConversation(r), sse)
	if err != nil {
		if errors.Is(err, conversation.ErrInvalidArgument) && !sse.started {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if r.Context().Err() != nil {
			_ = sse.write(StreamFrame{Error: "request canceled"})
			return
		}
		_ = sse.write(StreamFrame{Error: err.Error()})
		return
	}

	_ = sse.write(StreamFrame{
		Done:      true,
		RequestID: res.RequestID,
		SessionID: res.SessionID,
	})
}
