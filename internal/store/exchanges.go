// ABOUTME: SQLite persistence for journaled gateway exchanges
// ABOUTME: Save, look up by request id, and list recent exchanges

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const exchangeColumns = `
	id, request_id, profile, engine, streaming, principal,
	continuation_in, continuation_out, is_continuation,
	query, response_chars, status, error, started_at, duration_ms,
	input_tokens, output_tokens, cache_read_tokens, cache_write_tokens, cost_usd
`

// SaveExchange inserts a journal row. An empty ID is filled with a new UUID.
func (s *SQLiteStore) SaveExchange(ctx context.Context, ex *Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	if ex.StartedAt.IsZero() {
		ex.StartedAt = time.Now()
	}

	query := `INSERT INTO exchanges (` + exchangeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		ex.ID,
		ex.RequestID,
		ex.Profile,
		ex.Engine,
		boolToInt(ex.Streaming),
		nullString(ex.Principal),
		nullString(ex.ContinuationIn),
		nullString(ex.ContinuationOut),
		boolToInt(ex.IsContinuation),
		ex.Query,
		ex.ResponseChars,
		string(ex.Status),
		nullString(ex.Error),
		ex.StartedAt.UTC().Format(timeLayout),
		ex.Duration.Milliseconds(),
		ex.InputTokens,
		ex.OutputTokens,
		ex.CacheReadTokens,
		ex.CacheWriteTokens,
		ex.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("inserting exchange: %w", err)
	}

	s.logger.Debug("saved exchange",
		"id", ex.ID,
		"request_id", ex.RequestID,
		"status", ex.Status,
	)
	return nil
}

// GetExchange returns the latest exchange recorded for requestID.
func (s *SQLiteStore) GetExchange(ctx context.Context, requestID string) (*Exchange, error) {
	query := `SELECT ` + exchangeColumns + ` FROM exchanges
		WHERE request_id = ?
		ORDER BY started_at DESC
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, requestID)
	ex, err := scanExchange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ex, nil
}

// ListExchanges returns recent exchanges, newest first.
func (s *SQLiteStore) ListExchanges(ctx context.Context, filter ExchangeFilter) ([]*Exchange, error) {
	query := `SELECT ` + exchangeColumns + ` FROM exchanges WHERE 1=1`
	args := []any{}

	if filter.Profile != "" {
		query += " AND profile = ?"
		args = append(args, filter.Profile)
	}
	if filter.SessionID != "" {
		query += " AND (continuation_in = ? OR continuation_out = ?)"
		args = append(args, filter.SessionID, filter.SessionID)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, clampLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying exchanges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exchange rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExchange(row rowScanner) (*Exchange, error) {
	var ex Exchange
	var streaming, isContinuation int
	var principal, contIn, contOut, errMsg sql.NullString
	var status, startedAt string
	var durationMs int64

	err := row.Scan(
		&ex.ID,
		&ex.RequestID,
		&ex.Profile,
		&ex.Engine,
		&streaming,
		&principal,
		&contIn,
		&contOut,
		&isContinuation,
		&ex.Query,
		&ex.ResponseChars,
		&status,
		&errMsg,
		&startedAt,
		&durationMs,
		&ex.InputTokens,
		&ex.OutputTokens,
		&ex.CacheReadTokens,
		&ex.CacheWriteTokens,
		&ex.CostUSD,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning exchange row: %w", err)
	}

	ex.Streaming = streaming != 0
	ex.IsContinuation = isContinuation != 0
	ex.Principal = principal.String
	ex.ContinuationIn = contIn.String
	ex.ContinuationOut = contOut.String
	ex.Error = errMsg.String
	ex.Status = ExchangeStatus(status)
	ex.Duration = time.Duration(durationMs) * time.Millisecond

	ex.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	return &ex, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
