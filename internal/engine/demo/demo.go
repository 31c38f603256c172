// ABOUTME: Demo engine that streams a canned legal analysis without a live model
// ABOUTME: Emits one word per tick with a line break every ten words

package demo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley-gateway/internal/engine"
)

// DefaultDelay is the pause before each word fragment.
const DefaultDelay = 50 * time.Millisecond

// wordsPerLine controls how often a line break fragment is inserted.
const wordsPerLine = 10

const analysisTemplate = `
## Legal Analysis

**Query received**: %s

### Risk Review
1. **Clause review**: the provided text was checked for the points below
2. **Legal risk**: potential problem areas were identified
3. **Suggested changes**: safer wording for the affected clauses

### Legal Perspective
- **Governing law**: analysis under general contract law principles
- **Case law**: relevant precedent should be consulted
- **Practice**: comparison with common contracting practice

### Recommendations
1. Have a qualified lawyer perform a detailed review
2. Negotiate the affected terms with the counterparty
3. Revisit contract terms on a regular schedule

**Note**: this is a demonstration response generated without a live engine.
Consult a professional for real legal advice.
`

// Engine streams the canned analysis for any prompt.
type Engine struct {
	delay time.Duration
	now   func() time.Time
}

// New creates a demo engine. A non-positive delay uses DefaultDelay.
func New(delay time.Duration) *Engine {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Engine{delay: delay, now: time.Now}
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return "demo" }

// Ready implements engine.ReadinessChecker. The demo engine is always ready.
func (e *Engine) Ready(context.Context) error { return nil }

// Query implements engine.Engine.
func (e *Engine) Query(ctx context.Context, prompt string, cfg engine.Config) (<-chan *engine.Event, error) {
	sessionID := uuid.New().String()
	if cfg.Continue && cfg.ResumeToken != "" {
		sessionID = cfg.ResumeToken
	}

	words := strings.Fields(fmt.Sprintf(analysisTemplate, prompt))
	out := make(chan *engine.Event)

	go func() {
		defer close(out)
		started := e.now()

		if !engine.Send(ctx, out, &engine.Event{Kind: engine.KindSystem, SessionID: sessionID}) {
			return
		}

		ticker := time.NewTicker(e.delay)
		defer ticker.Stop()

		for i, word := range words {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			frags := []string{word + " "}
			if (i+1)%wordsPerLine == 0 {
				frags = append(frags, "\n")
			}
			if !engine.Send(ctx, out, &engine.Event{Kind: engine.KindAssistant, Fragments: frags}) {
				return
			}
		}

		engine.Send(ctx, out, &engine.Event{
			Kind:      engine.KindResult,
			SessionID: sessionID,
			Usage: &engine.Usage{
				InputTokens:  int64(len(strings.Fields(prompt))),
				OutputTokens: int64(len(words)),
			},
			Raw: []byte(fmt.Sprintf(`{"type":"result","duration_ms":%d}`, e.now().Sub(started).Milliseconds())),
		})
	}()

	return out, nil
}
