package ledger

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a record, and of the Match that owns it.
type Status string

const (
	StatusUnmatched  Status = "UNMATCHED"
	StatusCandidate  Status = "CANDIDATE"
	StatusScored     Status = "SCORED"
	StatusMatched    Status = "MATCHED"
	StatusDiscrepant Status = "DISCREPANT"
	StatusResolved   Status = "RESOLVED"
	StatusIgnored    Status = "IGNORED"
)

// ErrInvalidTransition is returned when a status change is not permitted.
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Status][]Status{
	StatusUnmatched:  {StatusCandidate, StatusDiscrepant, StatusIgnored},
	StatusCandidate:  {StatusScored, StatusDiscrepant},
	StatusScored:     {StatusMatched, StatusDiscrepant},
	StatusMatched:    {StatusResolved, StatusIgnored},
	StatusDiscrepant: {StatusResolved, StatusIgnored},
}

// CanTransition reports whether a record may move from one status to another.
// RESOLVED and IGNORED are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns to when the move is allowed and ErrInvalidTransition otherwise.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Settled reports whether records in this status are excluded from
// candidate generation on later runs.
func (s Status) Settled() bool {
	return s == StatusMatched || s == StatusResolved || s == StatusIgnored
}
