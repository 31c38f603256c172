// ABOUTME: SQLite implementation of the Store interface
// ABOUTME: Supports the pure-Go modernc driver and the cgo mattn driver

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens a store with the default pure-Go driver.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(DriverModernc, path)
}

// Open creates a SQLite store at path using the named driver.
// The schema is created if needed. ":memory:" gives a private in-memory database.
func Open(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	switch driver {
	case "":
		driver = DriverModernc
	case DriverModernc, DriverMattn:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "driver", driver, "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS exchanges (
			id                 TEXT PRIMARY KEY,
			request_id         TEXT NOT NULL,
			profile            TEXT NOT NULL,
			engine             TEXT NOT NULL,
			streaming          INTEGER NOT NULL DEFAULT 0,
			principal          TEXT,
			continuation_in    TEXT,
			continuation_out   TEXT,
			is_continuation    INTEGER NOT NULL DEFAULT 0,
			query              TEXT NOT NULL,
			response_chars     INTEGER NOT NULL DEFAULT 0,
			status             TEXT NOT NULL,
			error              TEXT,
			started_at         TEXT NOT NULL,
			duration_ms        INTEGER NOT NULL DEFAULT 0,
			input_tokens       INTEGER NOT NULL DEFAULT 0,
			output_tokens      INTEGER NOT NULL DEFAULT 0,
			cache_read_tokens  INTEGER NOT NULL DEFAULT 0,
			cache_write_tokens INTEGER NOT NULL DEFAULT 0,
			cost_usd           REAL NOT NULL DEFAULT 0,

			CHECK (status IN ('ok', 'engine_failure', 'canceled'))
		);

		CREATE INDEX IF NOT EXISTS idx_exchanges_request ON exchanges(request_id, started_at);
		CREATE INDEX IF NOT EXISTS idx_exchanges_started ON exchanges(started_at);
		CREATE INDEX IF NOT EXISTS idx_exchanges_profile ON exchanges(profile);
		CREATE INDEX IF NOT EXISTS idx_exchanges_continuation_out ON exchanges(continuation_out);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullString converts an empty string to a NULL value.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*SQLiteStore)(nil)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
