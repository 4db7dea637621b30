package dto

import (
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// ReconcileRequest is the body of POST /api/accounts/{accountID}/reconcile.
type ReconcileRequest struct {
	SideA []ledger.RawTransaction `json:"source_a"`
	SideB []ledger.RawTransaction `json:"source_b"`
	AsOf  string                  `json:"as_of,omitempty"` // RFC3339; defaults to now
}

// ResolveRequest is the body of POST /api/discrepancies/{id}/resolve.
type ResolveRequest struct {
	Action           string `json:"action"`
	Notes            string `json:"notes,omitempty"`
	AdjustmentAmount *int64 `json:"adjustment_amount,omitempty"` // minor units
	ResolvedBy       string `json:"resolved_by,omitempty"`
}

// MatchListParams represents query parameters for listing matches.
type MatchListParams struct {
	Status            string `json:"status"`
	Kind              string `json:"kind"`
	Severity          string `json:"severity"`
	HasDiscrepancy    *bool  `json:"has_discrepancy"`
	IncludeSuperseded bool   `json:"include_superseded"`
	Limit             int    `json:"limit"`
	Offset            int    `json:"offset"`
}

// DiscrepancyListParams represents query parameters for listing discrepancies.
type DiscrepancyListParams struct {
	Severity string `json:"severity"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

// RunListParams represents query parameters for listing runs.
type RunListParams struct {
	Limit int `json:"limit"`
}

// DefaultMatchListParams returns default values for match list params.
func DefaultMatchListParams() MatchListParams {
	return MatchListParams{
		Limit:  50,
		Offset: 0,
	}
}

// DefaultDiscrepancyListParams returns default values for discrepancy list
// params. Only open discrepancies are listed unless asked otherwise.
func DefaultDiscrepancyListParams() DiscrepancyListParams {
	return DiscrepancyListParams{
		Status: string(ledger.DiscrepancyOpen),
		Limit:  50,
		Offset: 0,
	}
}

// DefaultRunListParams returns default values for run list params.
func DefaultRunListParams() RunListParams {
	return RunListParams{
		Limit: 20,
	}
}
