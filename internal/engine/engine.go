// ABOUTME: Engine interface and event types shared by every engine adapter
// ABOUTME: Events carry text fragments and an optional session identifier

package engine

import (
	"context"
	"encoding/json"
	"strings"
)

// Well-known event kinds. Adapters may emit others.
const (
	KindSystem    = "system"
	KindAssistant = "assistant"
	KindResult    = "result"
	KindError     = "error"
)

// Config is the per-request configuration handed to an engine.
type Config struct {
	Instructions string
	TurnLimit    int

	// Continue is true iff ResumeToken names a prior conversation to resume.
	Continue    bool
	ResumeToken string
}

// Usage reports token consumption for one engine invocation.
type Usage struct {
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	CacheReadTokens  int64   `json:"cache_read_tokens"`
	CacheWriteTokens int64   `json:"cache_write_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Event is one unit of streamed engine output.
type Event struct {
	Kind      string
	Fragments []string
	SessionID string          // optional; the last non-empty value wins
	Usage     *Usage          // usually only on the terminal event
	Err       error           // set on the final event when the engine failed
	Raw       json.RawMessage // engine payload, kept for debugging
}

// Text joins the event's fragments.
func (e *Event) Text() string {
	return strings.Join(e.Fragments, "")
}

// Engine produces a lazy, ordered, non-restartable stream of events.
type Engine interface {
	Name() string
	Query(ctx context.Context, prompt string, cfg Config) (<-chan *Event, error)
}

// ReadinessChecker is implemented by engines that can report whether they are
// able to serve requests right now.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Send delivers ev on out unless ctx is canceled first. It reports whether the
// event was delivered; producers should stop when it returns false.
func Send(ctx context.Context, out chan<- *Event, ev *Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
