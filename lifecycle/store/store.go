// Package store provides pass journal implementations for lifecycle passes.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested pass does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Summary statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Completion records one phase completion within a pass.
type Completion struct {
	// PassID identifies the pass.
	PassID string

	// Seq is the 1-based completion order within the pass.
	Seq int64

	// Stage names the stage of the completed phase.
	Stage string

	// ElementID identifies the element the phase processed.
	ElementID string

	// Path is the element path of the phase.
	Path string

	// Successors is the number of successor phases the phase spawned.
	Successors int

	// Duration is the time from the phase starting to run until it completed,
	// which includes its whole successor subtree.
	Duration time.Duration

	// CompletedAt is when the phase completed.
	CompletedAt time.Time
}

// Summary records the outcome of a whole pass.
type Summary struct {
	PassID      string
	Status      string // StatusCompleted or StatusFailed
	Phases      int    // phases completed
	Errors      int    // phase errors observed
	Error       string // first error message, empty on success
	Duration    time.Duration
	CompletedAt time.Time
}

// Store persists the journal of lifecycle passes: one Completion per finished
// phase and one Summary per pass.
//
// Implementations:
//   - MemStore: in-memory, for tests and single-process use
//   - SQLiteStore: single-file database via modernc.org/sqlite
//   - MySQLStore: shared journal via github.com/go-sql-driver/mysql
//
// Every implementation is safe for concurrent use; completions arrive from
// multiple workers.
type Store interface {
	// SaveCompletion appends a completion record. Saving the same
	// (PassID, Seq) twice fails.
	SaveCompletion(ctx context.Context, c Completion) error

	// Completions returns the completions of passID ordered by Seq. An unknown
	// pass yields an empty slice.
	Completions(ctx context.Context, passID string) ([]Completion, error)

	// SaveSummary stores the summary of a pass, replacing any earlier one.
	SaveSummary(ctx context.Context, s Summary) error

	// LoadSummary returns the summary of passID, or ErrNotFound.
	LoadSummary(ctx context.Context, passID string) (Summary, error)

	// Close releases resources held by the store. Closing twice is a no-op.
	Close() error
}
