// Package store provides the exchange journal for parley-gateway using SQLite.
//
// # Purpose
//
// The journal records one row per gateway exchange (request, engine outcome,
// continuation token handed back, token usage). It exists for operators:
// correlation with engine-side logs and usage accounting. The gateway never
// reads it back to decide anything, so conversations stay owned by the engine.
//
// # Drivers
//
// Two database/sql drivers are registered:
//
//   - "sqlite": modernc.org/sqlite, pure Go (default)
//   - "sqlite3": github.com/mattn/go-sqlite3, cgo
//
// # Interfaces
//
//   - Store: SaveExchange, GetExchange, ListExchanges, GetUsageStats, Close
//
// SQLiteStore is the production implementation; MockStore is an in-memory
// implementation for tests.
//
// # Usage
//
//	s, err := store.Open("sqlite", "/var/lib/parley/journal.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	err = s.SaveExchange(ctx, &store.Exchange{...})
package store
