// ABOUTME: Aggregated token usage over journaled exchanges
// ABOUTME: Backs the usage statistics endpoint

package store

import (
	"context"
	"fmt"
)

// GetUsageStats returns aggregated usage statistics with optional filters.
func (s *SQLiteStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	query := `
		SELECT
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cache_read_tokens), 0),
			COALESCE(SUM(cache_write_tokens), 0),
			COALESCE(SUM(cost_usd), 0),
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'engine_failure' THEN 1 ELSE 0 END), 0)
		FROM exchanges
		WHERE 1=1
	`
	args := []any{}

	if filter.Profile != nil {
		query += " AND profile = ?"
		args = append(args, *filter.Profile)
	}
	if filter.Since != nil {
		query += " AND started_at >= ?"
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	if filter.Until != nil {
		query += " AND started_at < ?"
		args = append(args, filter.Until.UTC().Format(timeLayout))
	}

	var stats UsageStats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalInput,
		&stats.TotalOutput,
		&stats.TotalCacheRead,
		&stats.TotalCacheWrite,
		&stats.TotalCostUSD,
		&stats.RequestCount,
		&stats.FailureCount,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}

	// Cache tokens are reported separately.
	stats.TotalTokens = stats.TotalInput + stats.TotalOutput
	return &stats, nil
}
