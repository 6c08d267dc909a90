package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps the journal in a single file and needs no setup, which suits
// development, tests and single-process deployments. The database runs in
// WAL mode with a single writer connection.
//
// Schema:
//   - pass_completions: one row per completed phase, unique on (pass_id, seq)
//   - pass_summaries: one row per pass
type SQLiteStore struct {
	*sqlStore
	path string
}

// NewSQLiteStore opens or creates the journal database at path. Use
// ":memory:" for a throwaway database.
//
// Example:
//
//	journal, err := store.NewSQLiteStore("./lifecycle.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer journal.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite supports one writer at a time
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	if err := execAll(ctx, db, pragmas...); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure SQLite: %w", err)
	}

	if err := execAll(ctx, db, sqliteSchema...); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteStore{
		sqlStore: &sqlStore{
			db: db,
			upsertSummary: `
				INSERT INTO pass_summaries (pass_id, status, phases, errors, error, duration_ns, completed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(pass_id) DO UPDATE SET
					status = excluded.status,
					phases = excluded.phases,
					errors = excluded.errors,
					error = excluded.error,
					duration_ns = excluded.duration_ns,
					completed_at = excluded.completed_at
			`,
		},
		path: path,
	}, nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS pass_completions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pass_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		stage TEXT NOT NULL,
		element_id TEXT NOT NULL,
		path TEXT NOT NULL,
		successors INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		completed_at INTEGER NOT NULL,
		UNIQUE(pass_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_completions_pass_id ON pass_completions(pass_id)`,
	`CREATE TABLE IF NOT EXISTS pass_summaries (
		pass_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		phases INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		error TEXT NOT NULL,
		duration_ns INTEGER NOT NULL,
		completed_at INTEGER NOT NULL
	)`,
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}
