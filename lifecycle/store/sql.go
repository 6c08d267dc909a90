package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// sqlStore holds the queries shared by the database/sql backed journals.
// Timestamps and durations are stored as integer nanoseconds so that neither
// driver needs time parsing enabled.
type sqlStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool

	// upsertSummary is the dialect-specific summary upsert statement taking
	// (pass_id, status, phases, errors, error, duration_ns, completed_at).
	upsertSummary string
}

func (s *sqlStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SaveCompletion implements Store.
func (s *sqlStore) SaveCompletion(ctx context.Context, c Completion) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	query := `
		INSERT INTO pass_completions (pass_id, seq, stage, element_id, path, successors, duration_ns, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.PassID, c.Seq, c.Stage, c.ElementID, c.Path, c.Successors,
		int64(c.Duration), c.CompletedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save completion: %w", err)
	}
	return nil
}

// Completions implements Store.
func (s *sqlStore) Completions(ctx context.Context, passID string) ([]Completion, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT seq, stage, element_id, path, successors, duration_ns, completed_at
		FROM pass_completions
		WHERE pass_id = ?
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, passID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Completion{}
	for rows.Next() {
		c := Completion{PassID: passID}
		var durationNS, completedAt int64
		if err := rows.Scan(&c.Seq, &c.Stage, &c.ElementID, &c.Path, &c.Successors, &durationNS, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		c.Duration = time.Duration(durationNS)
		c.CompletedAt = time.Unix(0, completedAt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate completions: %w", err)
	}
	return out, nil
}

// SaveSummary implements Store.
func (s *sqlStore) SaveSummary(ctx context.Context, sum Summary) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.upsertSummary,
		sum.PassID, sum.Status, sum.Phases, sum.Errors, sum.Error,
		int64(sum.Duration), sum.CompletedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// LoadSummary implements Store.
func (s *sqlStore) LoadSummary(ctx context.Context, passID string) (Summary, error) {
	if err := s.checkOpen(); err != nil {
		return Summary{}, err
	}

	query := `
		SELECT status, phases, errors, error, duration_ns, completed_at
		FROM pass_summaries
		WHERE pass_id = ?
	`
	sum := Summary{PassID: passID}
	var durationNS, completedAt int64
	err := s.db.QueryRowContext(ctx, query, passID).
		Scan(&sum.Status, &sum.Phases, &sum.Errors, &sum.Error, &durationNS, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, ErrNotFound
	}
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load summary: %w", err)
	}
	sum.Duration = time.Duration(durationNS)
	sum.CompletedAt = time.Unix(0, completedAt)
	return sum, nil
}

// Close implements Store.
func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *sqlStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

func execAll(ctx context.Context, db *sql.DB, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
