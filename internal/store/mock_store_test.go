// ABOUTME: Tests for the in-memory MockStore
// ABOUTME: Ensures it behaves like the SQLite journal for callers

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_Exchanges(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	base := time.Now()
	require.NoError(t, m.SaveExchange(ctx, testExchange("one", base)))
	require.NoError(t, m.SaveExchange(ctx, testExchange("two", base.Add(time.Second))))

	got, err := m.GetExchange(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, "one", got.RequestID)

	_, err = m.GetExchange(ctx, "three")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := m.ListExchanges(ctx, ExchangeFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "two", list[0].RequestID)

	stats, err := m.GetUsageStats(ctx, UsageFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.RequestCount)
	assert.Equal(t, int64(300), stats.TotalTokens)
}

func TestMockStore_SaveErr(t *testing.T) {
	m := NewMockStore()
	m.SaveErr = errors.New("disk full")

	err := m.SaveExchange(context.Background(), testExchange("x", time.Now()))
	assert.EqualError(t, err, "disk full")
}
