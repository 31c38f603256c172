// ABOUTME: Tests for the SQLite exchange journal
// ABOUTME: Exercises the SQLite journal with both drivers

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func testExchange(requestID string, startedAt time.Time) *Exchange {
	return &Exchange{
		RequestID:       requestID,
		Profile:         "chat",
		Engine:          "demo",
		ContinuationOut: "sess-" + requestID,
		Query:           "what is a tort",
		ResponseChars:   42,
		Status:          StatusOK,
		StartedAt:       startedAt,
		Duration:        1500 * time.Millisecond,
		InputTokens:     100,
		OutputTokens:    50,
		CostUSD:         0.01,
	}
}

func TestStore_SaveAndGetExchange(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	ex := testExchange("req-001", started)
	ex.Streaming = true
	ex.IsContinuation = true
	ex.ContinuationIn = "sess-prev"
	ex.Principal = "alice"

	require.NoError(t, store.SaveExchange(ctx, ex))
	assert.NotEmpty(t, ex.ID)

	got, err := store.GetExchange(ctx, "req-001")
	require.NoError(t, err)
	assert.Equal(t, ex.ID, got.ID)
	assert.Equal(t, "chat", got.Profile)
	assert.Equal(t, "demo", got.Engine)
	assert.True(t, got.Streaming)
	assert.True(t, got.IsContinuation)
	assert.Equal(t, "sess-prev", got.ContinuationIn)
	assert.Equal(t, "sess-req-001", got.ContinuationOut)
	assert.Equal(t, "alice", got.Principal)
	assert.Equal(t, 42, got.ResponseChars)
	assert.Equal(t, StatusOK, got.Status)
	assert.Empty(t, got.Error)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.Equal(t, int64(100), got.InputTokens)
	assert.InDelta(t, 0.01, got.CostUSD, 1e-9)
}

func TestStore_GetExchangeNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetExchange(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetExchangeReturnsLatest(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := testExchange("req-dup", base)
	first.ResponseChars = 1
	second := testExchange("req-dup", base.Add(100*time.Millisecond))
	second.ResponseChars = 2

	require.NoError(t, store.SaveExchange(ctx, second))
	require.NoError(t, store.SaveExchange(ctx, first))

	got, err := store.GetExchange(ctx, "req-dup")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ResponseChars)
}

func TestStore_ListExchanges(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		ex := testExchange(id, base.Add(time.Duration(i)*time.Second))
		if id == "c" {
			ex.Profile = "legal"
			ex.ContinuationIn = "sess-a"
		}
		require.NoError(t, store.SaveExchange(ctx, ex))
	}

	t.Run("newest first", func(t *testing.T) {
		list, err := store.ListExchanges(ctx, ExchangeFilter{})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "c", list[0].RequestID)
		assert.Equal(t, "a", list[2].RequestID)
	})

	t.Run("limit", func(t *testing.T) {
		list, err := store.ListExchanges(ctx, ExchangeFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("profile", func(t *testing.T) {
		list, err := store.ListExchanges(ctx, ExchangeFilter{Profile: "legal"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "c", list[0].RequestID)
	})

	t.Run("session matches either side", func(t *testing.T) {
		list, err := store.ListExchanges(ctx, ExchangeFilter{SessionID: "sess-a"})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "c", list[0].RequestID)
		assert.Equal(t, "a", list[1].RequestID)
	})
}

func TestStore_GetUsageStats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveExchange(ctx, testExchange("u1", base)))

	failed := testExchange("u2", base.Add(time.Hour))
	failed.Profile = "legal"
	failed.Status = StatusEngineFailure
	failed.Error = "engine exploded"
	failed.InputTokens = 10
	failed.OutputTokens = 0
	failed.CostUSD = 0
	require.NoError(t, store.SaveExchange(ctx, failed))

	stats, err := store.GetUsageStats(ctx, UsageFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(110), stats.TotalInput)
	assert.Equal(t, int64(50), stats.TotalOutput)
	assert.Equal(t, int64(160), stats.TotalTokens)
	assert.Equal(t, int64(2), stats.RequestCount)
	assert.Equal(t, int64(1), stats.FailureCount)

	legal := "legal"
	stats, err = store.GetUsageStats(ctx, UsageFilter{Profile: &legal})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RequestCount)

	since := base.Add(30 * time.Minute)
	stats, err = store.GetUsageStats(ctx, UsageFilter{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RequestCount)
	assert.Equal(t, int64(10), stats.TotalInput)
}

func TestStore_EmptyUsageStats(t *testing.T) {
	store := setupTestStore(t)

	stats, err := store.GetUsageStats(context.Background(), UsageFilter{})
	require.NoError(t, err)
	assert.Zero(t, stats.RequestCount)
	assert.Zero(t, stats.TotalTokens)
}

func TestOpen_InMemory(t *testing.T) {
	store, err := Open(DriverModernc, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveExchange(ctx, testExchange("mem", time.Now())))
	_, err = store.GetExchange(ctx, "mem")
	assert.NoError(t, err)
}

func TestOpen_MattnDriver(t *testing.T) {
	store, err := Open(DriverMattn, filepath.Join(t.TempDir(), "mattn.db"))
	if err != nil {
		t.Skipf("sqlite3 driver unavailable: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveExchange(ctx, testExchange("cgo", time.Now())))
	got, err := store.GetExchange(ctx, "cgo")
	require.NoError(t, err)
	assert.Equal(t, "cgo", got.RequestID)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("postgres", "whatever")
	assert.ErrorContains(t, err, "unsupported database driver")
}
