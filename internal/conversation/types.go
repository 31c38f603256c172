// ABOUTME: Request, envelope, and profile types for the conversation gateway
// ABOUTME: JSON tags match the public HTTP contract

package conversation

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/parley-gateway/internal/engine"
	"github.com/2389/parley-gateway/internal/store"
)

// QueryRequest is one inbound query.
type QueryRequest struct {
	Text              string
	ClientRequestID   string // used verbatim when non-empty
	ContinuationToken string // resume this conversation when non-empty

	// TurnLimit asks for a different turn limit. It is honored only when the
	// profile allows overrides, and is clamped to Profile.MaxTurnLimit.
	TurnLimit int

	// Instructions replaces the profile's instructions when non-empty.
	Instructions string

	// Principal is the authenticated caller, if any. Only journaled.
	Principal string
}

// Validate checks the request before any engine work happens.
func (r *QueryRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return invalidArgument("query must not be empty")
	}
	if r.TurnLimit < 0 {
		return invalidArgument("max_turns must not be negative")
	}
	return nil
}

// Envelope is the buffered response to one query.
type Envelope struct {
	RequestID      string    `json:"request_id"`
	SessionID      string    `json:"session_id,omitempty"`
	Query          string    `json:"query"`
	Response       string    `json:"response"`
	IsContinuation bool      `json:"is_continuation"`
	Messages       []Message `json:"messages,omitempty"`

	// Usage is reported by the engine on its terminal event, if at all.
	Usage *engine.Usage `json:"-"`
}

// Message is a debug summary of one engine event.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Content   []string        `json:"content,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// StreamResult is what Stream reports after the last fragment.
type StreamResult struct {
	RequestID      string
	SessionID      string
	IsContinuation bool
	ResponseChars  int
	Usage          *engine.Usage
}

// Sink receives fragments from Stream in arrival order.
type Sink interface {
	Fragment(text string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(text string) error

func (f SinkFunc) Fragment(text string) error { return f(text) }

// Profile fixes the engine configuration for one family of requests.
type Profile struct {
	Name         string
	Instructions string
	TurnLimit    int

	// MaxTurnLimit caps QueryRequest.TurnLimit. Zero ignores caller overrides.
	MaxTurnLimit int
}

// Journal records exchanges. store.Store satisfies it.
type Journal interface {
	SaveExchange(ctx context.Context, ex *store.Exchange) error
}

// Recorder receives per-request measurements.
type Recorder interface {
	// Begin marks a request in flight; the returned func ends it.
	Begin(profile string) func()
	Exchange(profile, outcome string, elapsed time.Duration, fragments int)
	Usage(profile string, u *engine.Usage)
}

// Options are optional collaborators for a Service.
type Options struct {
	Logger  *slog.Logger
	Journal Journal
	Metrics Recorder

	// KeepMessages fills Envelope.Messages with a summary of every event.
	KeepMessages bool

	// JournalTimeout bounds each journal write. Defaults to 5s.
	JournalTimeout time.Duration
}
