// Package usage accounts for per-request token and cost spend across
// providers and models, persisting to a dedicated SQLite database
// separate from session storage and the policy store.
package usage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is the usage accounting database: one row per LLM request,
// queryable by session, model, or mode, with cleanup support.
type Store struct {
	db      *sql.DB
	dbPath  string
	pricing *PricingSource
}

// Open opens (creating if absent) the SQLite-backed usage store at
// dbPath, using pricing as the cost source for RecordRequest.
func Open(ctx context.Context, dbPath string, pricing *PricingSource) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open usage store: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, dbPath: dbPath, pricing: pricing}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func migrate(ctx context.Context, db *sql.DB) error {
	const stmt = `CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		mode TEXT NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cost_usd REAL NOT NULL,
		request_type TEXT NOT NULL,
		estimated INTEGER NOT NULL
	)`
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("migrate usage store: %w", err)
	}
	const idx = `CREATE INDEX IF NOT EXISTS idx_requests_session ON requests(session_id)`
	if _, err := db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("migrate usage store index: %w", err)
	}
	return nil
}
