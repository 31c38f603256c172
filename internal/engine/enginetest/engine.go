// ABOUTME: Scripted fake engine for tests of the gateway and HTTP layers
// ABOUTME: Replays configured events and records every call

package enginetest

import (
	"context"
	"sync"

	"github.com/2389/parley-gateway/internal/engine"
)

// Call records one Query invocation.
type Call struct {
	Prompt string
	Config engine.Config
}

// Engine replays a fixed script of events for every Query.
type Engine struct {
	mu    sync.Mutex
	calls []Call

	events   []*engine.Event
	failErr  error
	failAt   int
	queryErr error
	block    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvents sets the events emitted on every call.
func WithEvents(events ...*engine.Event) Option {
	return func(e *Engine) {
		e.events = events
	}
}

// WithFailureAfter emits err as a final error event after n scripted events.
func WithFailureAfter(n int, err error) Option {
	return func(e *Engine) {
		e.failAt = n
		e.failErr = err
	}
}

// WithQueryError makes Query itself fail before any event is produced.
func WithQueryError(err error) Option {
	return func(e *Engine) {
		e.queryErr = err
	}
}

// WithBlockAfterEvents keeps the stream open after the script until ctx is done.
func WithBlockAfterEvents() Option {
	return func(e *Engine) {
		e.block = true
	}
}

// New creates a scripted engine.
func New(opts ...Option) *Engine {
	e := &Engine{failAt: -1}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fragments builds an assistant event from text fragments.
func Fragments(parts ...string) *engine.Event {
	return &engine.Event{Kind: engine.KindAssistant, Fragments: parts}
}

// Session builds an event that only reports a session identifier.
func Session(id string) *engine.Event {
	return &engine.Event{Kind: engine.KindSystem, SessionID: id}
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return "scripted" }

// Query implements engine.Engine.
func (e *Engine) Query(ctx context.Context, prompt string, cfg engine.Config) (<-chan *engine.Event, error) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Prompt: prompt, Config: cfg})
	e.mu.Unlock()

	if e.queryErr != nil {
		return nil, e.queryErr
	}

	out := make(chan *engine.Event)
	go func() {
		defer close(out)
		for i, ev := range e.events {
			if i == e.failAt {
				engine.Send(ctx, out, &engine.Event{Kind: engine.KindError, Err: e.failErr})
				return
			}
			// Copy so consumers can't mutate the script.
			cp := *ev
			cp.Fragments = append([]string(nil), ev.Fragments...)
			if !engine.Send(ctx, out, &cp) {
				return
			}
		}
		if e.failAt >= len(e.events) {
			engine.Send(ctx, out, &engine.Event{Kind: engine.KindError, Err: e.failErr})
			return
		}
		if e.block {
			<-ctx.Done()
		}
	}()
	return out, nil
}

// Calls returns a copy of all recorded calls.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallCount returns the number of Query invocations.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}
