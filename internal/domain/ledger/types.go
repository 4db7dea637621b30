// Package ledger defines the record types shared by every stage of the
// reconciliation engine: raw feed records, normalized transactions, matches,
// discrepancies and resolutions.
//
// Every type here is a plain value. Stages pass them by value or by pointer
// but never mutate a record they did not create.
package ledger

import (
	"fmt"
	"time"
)

// Side identifies which ledger a record came from.
type Side string

const (
	// SideA is the payments processor feed.
	SideA Side = "source_a"
	// SideB is the accounting ledger feed.
	SideB Side = "source_b"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

// RawTransaction is a record as delivered by a feed. Fields are kept as text
// so the normalizer is the only place parsing happens.
type RawTransaction struct {
	Side         Side              `json:"side"`
	ExternalID   string            `json:"external_id"`
	Amount       string            `json:"amount,omitempty"`
	AmountMinor  *int64            `json:"amount_minor,omitempty"`
	Currency     string            `json:"currency"`
	Timestamp    string            `json:"timestamp"`
	Description  string            `json:"description,omitempty"`
	Counterparty string            `json:"counterparty,omitempty"`
	Payload      map[string]string `json:"payload,omitempty"`
}

// NormalizedTransaction is the canonical form every later stage consumes.
type NormalizedTransaction struct {
	Side            Side
	ExternalID      string
	AmountMinor     int64 // signed; negative for refunds and credits
	Currency        string
	OccurredAt      time.Time
	Tolerance       time.Duration
	DateOnly        bool
	DescriptionKey  string
	CounterpartyKey string // empty when absent

	// FeeAdjustedAmount is AmountMinor minus a known processor fee.
	FeeAdjustedAmount *int64
	FeeMinor          *int64

	Invalid       bool
	InvalidReason string
}

// Ref returns a stable reference for the record, unique across both sides.
func (t *NormalizedTransaction) Ref() Ref {
	return Ref{Side: t.Side, ExternalID: t.ExternalID}
}

// AbsAmount returns the magnitude of the amount in minor units.
func (t *NormalizedTransaction) AbsAmount() int64 {
	if t.AmountMinor < 0 {
		return -t.AmountMinor
	}
	return t.AmountMinor
}

// Ref points at one record on one side.
type Ref struct {
	Side       Side
	ExternalID string
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s", r.Side, r.ExternalID)
}

// MatchKind classifies a Match.
type MatchKind string

const (
	KindExact        MatchKind = "EXACT"
	KindFuzzy        MatchKind = "FUZZY"
	KindPartialSplit MatchKind = "PARTIAL_SPLIT"
	KindUnmatched    MatchKind = "UNMATCHED"
)

// DiscrepancyType is the taxonomy of mismatch causes.
type DiscrepancyType string

const (
	AmountMismatch     DiscrepancyType = "AMOUNT_MISMATCH"
	TimingMismatch     DiscrepancyType = "TIMING_MISMATCH"
	FeeDifference      DiscrepancyType = "FEE_DIFFERENCE"
	MissingCounterpart DiscrepancyType = "MISSING_COUNTERPART"
	DuplicateCandidate DiscrepancyType = "DUPLICATE_CANDIDATE"
	CurrencyMismatch   DiscrepancyType = "CURRENCY_MISMATCH"
)

// Severity orders discrepancies for review.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Rank returns 0, 1 or 2 for LOW, MEDIUM and HIGH.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Raise returns the next severity up, stopping at HIGH.
func (s Severity) Raise() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

// Cap returns the lower of s and max.
func (s Severity) Cap(max Severity) Severity {
	if s.Rank() > max.Rank() {
		return max
	}
	return s
}

// SubScores holds the per-feature similarity scores of a pairing.
// Counterparty is nil when either side has no counterparty.
type SubScores struct {
	Amount       float64  `json:"amount"`
	Timing       float64  `json:"timing"`
	Description  float64  `json:"description"`
	Counterparty *float64 `json:"counterparty,omitempty"`
}

// Match is the persisted outcome of reconciliation for a set of records.
type Match struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"account_id"`
	SideARefs    []string   `json:"side_a_refs"`
	SideBRefs    []string   `json:"side_b_refs"`
	Confidence   float64    `json:"confidence"`
	SubScores    SubScores  `json:"sub_scores"`
	Kind         MatchKind  `json:"match_kind"`
	Status       Status     `json:"status"`
	RunID        string     `json:"run_id,omitempty"`
	SupersededBy string     `json:"superseded_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// Active reports whether the match still claims its records.
func (m *Match) Active() bool {
	return m.SupersededBy == ""
}

// Refs returns every member of the match as side-qualified references.
func (m *Match) Refs() []Ref {
	refs := make([]Ref, 0, len(m.SideARefs)+len(m.SideBRefs))
	for _, id := range m.SideARefs {
		refs = append(refs, Ref{Side: SideA, ExternalID: id})
	}
	for _, id := range m.SideBRefs {
		refs = append(refs, Ref{Side: SideB, ExternalID: id})
	}
	return refs
}

// Validate checks the structural rules every match must satisfy.
func (m *Match) Validate() error {
	if len(m.SideARefs) == 0 && len(m.SideBRefs) == 0 {
		return fmt.Errorf("match %s has no members", m.ID)
	}
	if m.Kind == KindPartialSplit {
		if len(m.SideARefs) > 1 && len(m.SideBRefs) > 1 {
			return fmt.Errorf("split match %s has multiple members on both sides", m.ID)
		}
		if len(m.SideARefs) < 2 && len(m.SideBRefs) < 2 {
			return fmt.Errorf("split match %s has a single member on each side", m.ID)
		}
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("match %s confidence %f out of range", m.ID, m.Confidence)
	}
	return nil
}

// DiscrepancyStatus tracks whether a discrepancy still needs attention.
type DiscrepancyStatus string

const (
	DiscrepancyOpen     DiscrepancyStatus = "open"
	DiscrepancyResolved DiscrepancyStatus = "resolved"
)

// Discrepancy describes one cause of mismatch on a Match.
type Discrepancy struct {
	ID              string            `json:"id"`
	MatchID         string            `json:"match_id"`
	AccountID       string            `json:"account_id"`
	Type            DiscrepancyType   `json:"type"`
	Severity        Severity          `json:"severity"`
	Detail          map[string]any    `json:"detail,omitempty"`
	SuggestedAction string            `json:"suggested_action,omitempty"`
	Status          DiscrepancyStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ResolutionAction is the operator's decision on a discrepancy.
type ResolutionAction string

const (
	ActionMarkAsExpected    ResolutionAction = "mark_as_expected"
	ActionFlagForReview     ResolutionAction = "flag_for_review"
	ActionCreateLedgerEntry ResolutionAction = "create_ledger_entry"
	ActionIgnorePermanently ResolutionAction = "ignore_permanently"
	ActionManualMatch       ResolutionAction = "manual_match"
	ActionSplitTransaction  ResolutionAction = "split_transaction"
	ActionAdjustAmount      ResolutionAction = "adjust_amount"
)

// Valid reports whether a is a known action.
func (a ResolutionAction) Valid() bool {
	switch a {
	case ActionMarkAsExpected, ActionFlagForReview, ActionCreateLedgerEntry,
		ActionIgnorePermanently, ActionManualMatch, ActionSplitTransaction,
		ActionAdjustAmount:
		return true
	}
	return false
}

// TargetStatus is the match status a resolution moves to.
func (a ResolutionAction) TargetStatus() Status {
	if a == ActionIgnorePermanently {
		return StatusIgnored
	}
	return StatusResolved
}

// Resolution is an operator decision recorded against a discrepancy.
type Resolution struct {
	ID               string           `json:"id"`
	DiscrepancyID    string           `json:"discrepancy_id"`
	MatchID          string           `json:"match_id"`
	Action           ResolutionAction `json:"action"`
	Notes            string           `json:"notes,omitempty"`
	AdjustmentAmount *int64           `json:"adjustment_amount,omitempty"`
	ResolvedBy       string           `json:"resolved_by,omitempty"`
	ResolvedAt       time.Time        `json:"resolved_at"`
}
