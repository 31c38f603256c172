// ABOUTME: Mock Store implementation for testing
// ABOUTME: Keeps the exchange journal in memory

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	exchanges []*Exchange

	// SaveErr, when set, is returned by SaveExchange.
	SaveErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// SaveExchange stores a copy of ex.
func (m *MockStore) SaveExchange(ctx context.Context, ex *Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	if ex.StartedAt.IsZero() {
		ex.StartedAt = time.Now()
	}

	e := *ex
	m.exchanges = append(m.exchanges, &e)
	return nil
}

// GetExchange returns the latest exchange for requestID.
func (m *MockStore) GetExchange(ctx context.Context, requestID string) (*Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *Exchange
	for _, ex := range m.exchanges {
		if ex.RequestID != requestID {
			continue
		}
		if found == nil || !ex.StartedAt.Before(found.StartedAt) {
			found = ex
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	result := *found
	return &result, nil
}

// ListExchanges returns matching exchanges, newest first.
func (m *MockStore) ListExchanges(ctx context.Context, filter ExchangeFilter) ([]*Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Exchange
	for _, ex := range m.exchanges {
		if filter.Profile != "" && ex.Profile != filter.Profile {
			continue
		}
		if filter.SessionID != "" && ex.ContinuationIn != filter.SessionID && ex.ContinuationOut != filter.SessionID {
			continue
		}
		e := *ex
		out = append(out, &e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if limit := clampLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetUsageStats aggregates usage over matching exchanges.
func (m *MockStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &UsageStats{}
	for _, ex := range m.exchanges {
		if filter.Profile != nil && ex.Profile != *filter.Profile {
			continue
		}
		if filter.Since != nil && ex.StartedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !ex.StartedAt.Before(*filter.Until) {
			continue
		}
		stats.TotalInput += ex.InputTokens
		stats.TotalOutput += ex.OutputTokens
		stats.TotalCacheRead += ex.CacheReadTokens
		stats.TotalCacheWrite += ex.CacheWriteTokens
		stats.TotalCostUSD += ex.CostUSD
		stats.RequestCount++
		if ex.Status == StatusEngineFailure {
			stats.FailureCount++
		}
	}
	stats.TotalTokens = stats.TotalInput + stats.TotalOutput
	return stats, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

var _ Store = (*MockStore)(nil)
