package storage

import (
	"context"
	"errors"

	"github.com/eshaffer321/ledger-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyResolved is returned when a discrepancy is resolved twice.
	ErrAlreadyResolved = errors.New("discrepancy already resolved")
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory)
// and makes testing with mocks straightforward.
type Repository interface {
	MatchRepository
	DiscrepancyRepository
	RunRepository
	Close() error
}

// MatchRepository handles match persistence.
type MatchRepository interface {
	// ActiveMatches returns every match of the account not yet superseded.
	ActiveMatches(ctx context.Context, accountID string) ([]ledger.Match, error)

	// ListMatches returns matches matching the given filters with pagination
	ListMatches(ctx context.Context, filters MatchFilters) (*MatchListResult, error)

	// GetMatch retrieves a match by ID, or ErrNotFound
	GetMatch(ctx context.Context, id string) (*ledger.Match, error)
}

// DiscrepancyRepository handles discrepancies and their resolutions.
type DiscrepancyRepository interface {
	ListDiscrepancies(ctx context.Context, filters DiscrepancyFilters) (*DiscrepancyListResult, error)
	GetDiscrepancy(ctx context.Context, id string) (*ledger.Discrepancy, error)
	DiscrepanciesForMatch(ctx context.Context, matchID string) ([]ledger.Discrepancy, error)

	// SaveResolution records the resolution and closes its discrepancy. When
	// closeTo is set and no discrepancy of the match is left open, the match
	// moves to closeTo in the same write. Returns the match status after the
	// write, or ErrAlreadyResolved if the discrepancy is no longer open.
	SaveResolution(ctx context.Context, res *ledger.Resolution, closeTo ledger.Status) (ledger.Status, error)

	ListResolutions(ctx context.Context, matchID string) ([]ledger.Resolution, error)
}

// RunRepository handles reconciliation run tracking
type RunRepository interface {
	// StartRun records the start of a run
	StartRun(ctx context.Context, run *Run) error

	// ApplyRun persists a run's result and completes the run in one transaction
	ApplyRun(ctx context.Context, runID string, result *reconcile.Result) error

	// FailRun marks a run as failed; nothing of its result is kept
	FailRun(ctx context.Context, runID string, reason string) error

	ListRuns(ctx context.Context, accountID string, limit int) ([]Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
}
