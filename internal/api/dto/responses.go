package dto

import (
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// MatchListResponse is returned when listing matches.
type MatchListResponse struct {
	Matches    []ledger.Match `json:"matches"`
	TotalCount int            `json:"total_count"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

// DiscrepancyListResponse is returned when listing discrepancies.
type DiscrepancyListResponse struct {
	Discrepancies []ledger.Discrepancy `json:"discrepancies"`
	TotalCount    int                  `json:"total_count"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
}

// RunResponse represents a reconciliation run in API responses.
type RunResponse struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	StartedAt    string          `json:"started_at"`
	CompletedAt  string          `json:"completed_at,omitempty"`
	AsOf         string          `json:"as_of"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Stats        reconcile.Stats `json:"stats"`
}

// RunListResponse is returned when listing runs.
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Count int           `json:"count"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
