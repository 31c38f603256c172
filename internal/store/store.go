// ABOUTME: Store interface and data types for the exchange journal
// ABOUTME: Defines Exchange, filters, and usage aggregates

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ExchangeStatus is the outcome of one gateway exchange.
type ExchangeStatus string

const (
	StatusOK            ExchangeStatus = "ok"
	StatusEngineFailure ExchangeStatus = "engine_failure"
	StatusCanceled      ExchangeStatus = "canceled"
)

// Exchange is one journaled request/response pair.
type Exchange struct {
	ID              string
	RequestID       string
	Profile         string
	Engine          string
	Streaming       bool
	Principal       string
	ContinuationIn  string
	ContinuationOut string
	IsContinuation  bool
	Query           string // truncated by the caller
	ResponseChars   int
	Status          ExchangeStatus
	Error           string
	StartedAt       time.Time
	Duration        time.Duration

	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	CostUSD          float64
}

// ExchangeFilter narrows ListExchanges. Zero values match everything.
type ExchangeFilter struct {
	Profile   string
	SessionID string // matches either continuation column
	Limit     int
}

// UsageFilter narrows GetUsageStats.
type UsageFilter struct {
	Profile *string
	Since   *time.Time
	Until   *time.Time
}

// UsageStats aggregates token usage across exchanges.
type UsageStats struct {
	TotalInput      int64   `json:"total_input"`
	TotalOutput     int64   `json:"total_output"`
	TotalCacheRead  int64   `json:"total_cache_read"`
	TotalCacheWrite int64   `json:"total_cache_write"`
	TotalTokens     int64   `json:"total_tokens"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	RequestCount    int64   `json:"request_count"`
	FailureCount    int64   `json:"failure_count"`
}

// Store defines the journal operations.
type Store interface {
	SaveExchange(ctx context.Context, ex *Exchange) error
	// GetExchange returns the most recent exchange with the given request id.
	GetExchange(ctx context.Context, requestID string) (*Exchange, error)
	ListExchanges(ctx context.Context, filter ExchangeFilter) ([]*Exchange, error)
	GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error)
	Close() error
}

// MaxQueryRunes is how much of each query the journal keeps.
const MaxQueryRunes = 500

// DefaultListLimit applies when ExchangeFilter.Limit is not positive.
const DefaultListLimit = 50

// MaxListLimit caps ExchangeFilter.Limit.
const MaxListLimit = 1000

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
