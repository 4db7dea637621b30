package reconcile

import (
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// Request is the input of one reconciliation run.
type Request struct {
	AccountID string
	SideA     []ledger.NormalizedTransaction
	SideB     []ledger.NormalizedTransaction
	Prior     []ledger.Match // every match previously persisted for the account
	Config    Config
	AsOf      time.Time
}

// Supersession records that a prior match was replaced.
type Supersession struct {
	PriorID string `json:"prior_id"`
	NewID   string `json:"new_id"`
}

// Result holds the outcome of a run. Matches and Discrepancies hold only new
// state; recomputed prior matches that came out identical are listed in
// Reaffirmed.
type Result struct {
	Matches       []ledger.Match
	Discrepancies []ledger.Discrepancy
	Reaffirmed    []string
	Superseded    []Supersession
	Stats         Stats
}

// Stats summarizes a run.
type Stats struct {
	SideA      int `json:"side_a"`
	SideB      int `json:"side_b"`
	Invalid    int `json:"invalid"`
	Duplicates int `json:"duplicates"`
	Excluded   int `json:"excluded"`

	CandidatePairs int `json:"candidate_pairs"`
	Overflowed     int `json:"overflowed"`

	Exact     int `json:"exact"`
	Fuzzy     int `json:"fuzzy"`
	Split     int `json:"split"`
	Unmatched int `json:"unmatched"`

	Reaffirmed int `json:"reaffirmed"`
	Superseded int `json:"superseded"`

	High   int `json:"discrepancies_high"`
	Medium int `json:"discrepancies_medium"`
	Low    int `json:"discrepancies_low"`

	TotalA        int64   `json:"total_a_minor"`
	TotalB        int64   `json:"total_b_minor"`
	NetDifference int64   `json:"net_difference_minor"`
	MatchRate     float64 `json:"match_rate"`
	AutoMatchRate float64 `json:"auto_match_rate"`
	DurationMS    int64   `json:"duration_ms"`
}
