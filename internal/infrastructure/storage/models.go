package storage

import (
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// Run statuses
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run represents a reconciliation run record
type Run struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	AsOf         time.Time       `json:"as_of"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Stats        reconcile.Stats `json:"stats"`
}

// MatchFilters defines filters for listing matches
type MatchFilters struct {
	AccountID         string
	Status            ledger.Status    // empty = all
	Kind              ledger.MatchKind // empty = all
	Severity          ledger.Severity  // matches with an open discrepancy of this severity
	HasDiscrepancy    *bool            // nil = either
	IncludeSuperseded bool
	Limit             int // 0 = default 50
	Offset            int
}

// MatchListResult contains paginated match results
type MatchListResult struct {
	Matches    []ledger.Match `json:"matches"`
	TotalCount int            `json:"total_count"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

// DiscrepancyFilters defines filters for listing discrepancies. Only
// discrepancies of active matches are listed.
type DiscrepancyFilters struct {
	AccountID string
	Severity  ledger.Severity
	Type      ledger.DiscrepancyType
	Status    ledger.DiscrepancyStatus
	Limit     int
	Offset    int
}

// DiscrepancyListResult contains paginated discrepancy results
type DiscrepancyListResult struct {
	Discrepancies []ledger.Discrepancy `json:"discrepancies"`
	TotalCount    int                  `json:"total_count"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
