// ABOUTME: Service turns one query into one engine invocation and one response
// ABOUTME: Resolves request ids and continuation tokens, buffers or streams text

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/parley-gateway/internal/engine"
	"github.com/2389/parley-gateway/internal/store"
)

// Outcome labels passed to Recorder.Exchange.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeFailure  = "engine_failure"
	OutcomeCanceled = "canceled"
)

const (
	logQueryRunes         = 80
	defaultJournalTimeout = 5 * time.Second
)

// Service is the conversation gateway for one engine and profile.
type Service struct {
	engine  engine.Engine
	profile Profile
	opts    Options
	logger  *slog.Logger
}

// New creates a Service. Options may be zero.
func New(eng engine.Engine, profile Profile, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.JournalTimeout <= 0 {
		opts.JournalTimeout = defaultJournalTimeout
	}
	return &Service{
		engine:  eng,
		profile: profile,
		opts:    opts,
		logger:  logger.With("component", "conversation", "profile", profile.Name),
	}
}

// Profile returns the profile the service was built with.
func (s *Service) Profile() Profile {
	return s.profile
}

// Engine returns the underlying engine.
func (s *Service) Engine() engine.Engine {
	return s.engine
}

// exchange is the per-request state shared by Handle and Stream.
type exchange struct {
	requestID string
	query     string
	principal string
	tokenIn   string
	cfg       engine.Config
	streaming bool
	started   time.Time

	// filled while consuming
	sessionID string
	fragments int
	chars     int
	usage     *engine.Usage
	messages  []Message
}

// continuationToken is the token handed back to the caller: the caller's own
// token when one was supplied, otherwise the engine's last reported session.
func (x *exchange) continuationToken() string {
	if x.cfg.Continue {
		return x.tokenIn
	}
	return x.sessionID
}

func (s *Service) prepare(req *QueryRequest, streaming bool) (*exchange, error) {
	requestID := req.ClientRequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	if err := req.Validate(); err != nil {
		s.reject(requestID, req, err)
		return nil, err
	}

	cfg := engine.Config{
		Instructions: s.profile.Instructions,
		TurnLimit:    s.turnLimit(req.TurnLimit),
	}
	if req.Instructions != "" {
		cfg.Instructions = req.Instructions
	}
	if req.ContinuationToken != "" {
		cfg.Continue = true
		cfg.ResumeToken = req.ContinuationToken
	}

	return &exchange{
		requestID: requestID,
		query:     req.Text,
		principal: req.Principal,
		tokenIn:   req.ContinuationToken,
		cfg:       cfg,
		streaming: streaming,
		started:   time.Now(),
	}, nil
}

// turnLimit applies a caller's requested limit within the profile's bounds.
func (s *Service) turnLimit(requested int) int {
	if requested <= 0 || s.profile.MaxTurnLimit <= 0 {
		return s.profile.TurnLimit
	}
	return min(requested, s.profile.MaxTurnLimit)
}

// Handle runs one query to completion and returns the buffered envelope.
// Any engine failure fails the whole request; no partial text is returned.
func (s *Service) Handle(ctx context.Context, req *QueryRequest) (*Envelope, error) {
	x, err := s.prepare(req, false)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	err = s.run(ctx, x, func(fragment string) error {
		text.WriteString(fragment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Envelope{
		RequestID:      x.requestID,
		SessionID:      x.continuationToken(),
		Query:          x.query,
		Response:       text.String(),
		IsContinuation: x.cfg.Continue,
		Messages:       x.messages,
		Usage:          x.usage,
	}, nil
}

// Stream runs one query and forwards each non-empty fragment to sink as it
// arrives. Validation errors are returned before sink is called.
func (s *Service) Stream(ctx context.Context, req *QueryRequest, sink Sink) (*StreamResult, error) {
	x, err := s.prepare(req, true)
	if err != nil {
		return nil, err
	}

	err = s.run(ctx, x, func(fragment string) error {
		if fragment == "" {
			return nil
		}
		return sink.Fragment(fragment)
	})
	if err != nil {
		return nil, err
	}

	return &StreamResult{
		RequestID:      x.requestID,
		SessionID:      x.continuationToken(),
		IsContinuation: x.cfg.Continue,
		ResponseChars:  x.chars,
		Usage:          x.usage,
	}, nil
}

// run invokes the engine and consumes its events in order. It records the
// outcome in the journal and metrics before returning.
func (s *Service) run(ctx context.Context, x *exchange, emit func(string) error) (err error) {
	if s.opts.Metrics != nil {
		end := s.opts.Metrics.Begin(s.profile.Name)
		defer end()
	}
	defer func() { s.finish(ctx, x, err) }()

	s.logger.Debug("query started",
		"request_id", x.requestID,
		"continue", x.cfg.Continue,
		"turn_limit", x.cfg.TurnLimit,
		"streaming", x.streaming,
	)

	// Canceling runCtx on return releases the engine if we stop early.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := s.engine.Query(runCtx, x.query, x.cfg)
	if err != nil {
		return &EngineError{RequestID: x.requestID, Err: err}
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request %s: %w", x.requestID, ctx.Err())
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return fmt.Errorf("request %s: %w", x.requestID, ctx.Err())
				}
				return nil
			}
			if ev != nil && ev.Err != nil && ctx.Err() != nil {
				return fmt.Errorf("request %s: %w", x.requestID, ctx.Err())
			}
			if err := s.consume(x, ev, emit); err != nil {
				return err
			}
		}
	}
}

func (s *Service) consume(x *exchange, ev *engine.Event, emit func(string) error) error {
	if ev == nil {
		return nil
	}
	if ev.Err != nil {
		return &EngineError{RequestID: x.requestID, Err: ev.Err}
	}

	if s.opts.KeepMessages {
		x.messages = append(x.messages, Message{
			Type:      ev.Kind,
			SessionID: ev.SessionID,
			Content:   ev.Fragments,
			Raw:       ev.Raw,
		})
	}

	for _, fragment := range ev.Fragments {
		if err := emit(fragment); err != nil {
			return fmt.Errorf("request %s: delivering fragment: %w", x.requestID, err)
		}
		x.fragments++
		x.chars += utf8.RuneCountInString(fragment)
	}
	if ev.SessionID != "" {
		x.sessionID = ev.SessionID
	}
	if ev.Usage != nil {
		x.usage = ev.Usage
	}
	return nil
}

// reject logs and counts a request that failed validation.
func (s *Service) reject(requestID string, req *QueryRequest, err error) {
	s.logger.Warn("query rejected",
		"request_id", requestID,
		"query", truncate(req.Text, logQueryRunes),
		"error", err,
	)
	if s.opts.Metrics != nil {
		s.opts.Metrics.Exchange(s.profile.Name, OutcomeInvalid, 0, 0)
	}
}

func (s *Service) finish(ctx context.Context, x *exchange, err error) {
	elapsed := time.Since(x.started)

	outcome := OutcomeOK
	status := store.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, ErrEngineFailure):
		outcome, status = OutcomeFailure, store.StatusEngineFailure
		s.logger.Error("engine failure",
			"request_id", x.requestID,
			"query", truncate(x.query, logQueryRunes),
			"error", err,
		)
	default:
		outcome, status = OutcomeCanceled, store.StatusCanceled
		s.logger.Warn("query canceled",
			"request_id", x.requestID,
			"query", truncate(x.query, logQueryRunes),
			"error", err,
		)
	}

	if err == nil {
		s.logger.Info("query completed",
			"request_id", x.requestID,
			"session_id", x.continuationToken(),
			"fragments", x.fragments,
			"duration", elapsed,
		)
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.Exchange(s.profile.Name, outcome, elapsed, x.fragments)
		if x.usage != nil {
			s.opts.Metrics.Usage(s.profile.Name, x.usage)
		}
	}

	if s.opts.Journal != nil {
		s.record(ctx, x, status, err, elapsed)
	}
}

func (s *Service) record(ctx context.Context, x *exchange, status store.ExchangeStatus, err error, elapsed time.Duration) {
	// The caller may already be gone; the row is still worth writing.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.JournalTimeout)
	defer cancel()

	row := &store.Exchange{
		RequestID:      x.requestID,
		Profile:        s.profile.Name,
		Engine:         s.engine.Name(),
		Streaming:      x.streaming,
		Principal:      x.principal,
		ContinuationIn: x.tokenIn,
		IsContinuation: x.cfg.Continue,
		Query:          truncate(x.query, store.MaxQueryRunes),
		Status:         status,
		StartedAt:      x.started,
		Duration:       elapsed,
	}
	if err == nil {
		row.ContinuationOut = x.continuationToken()
		row.ResponseChars = x.chars
	} else {
		row.Error = err.Error()
	}
	if u := x.usage; u != nil {
		row.InputTokens = u.InputTokens
		row.OutputTokens = u.OutputTokens
		row.CacheReadTokens = u.CacheReadTokens
		row.CacheWriteTokens = u.CacheWriteTokens
		row.CostUSD = u.CostUSD
	}

	if jerr := s.opts.Journal.SaveExchange(ctx, row); jerr != nil {
		s.logger.Warn("failed to journal exchange", "request_id", x.requestID, "error", jerr)
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
