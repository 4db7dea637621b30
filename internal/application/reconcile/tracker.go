package reconcile

import (
	"fmt"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// tracker walks each record of a run through the status machine and fails
// loudly on a move the machine does not allow.
type tracker struct {
	states map[ledger.Ref]ledger.Status
}

func newTracker() *tracker {
	return &tracker{states: make(map[ledger.Ref]ledger.Status)}
}

func (t *tracker) enter(ref ledger.Ref) {
	t.states[ref] = ledger.StatusUnmatched
}

func (t *tracker) move(ref ledger.Ref, to ledger.Status) error {
	from, ok := t.states[ref]
	if !ok {
		return fmt.Errorf("record %s was never entered", ref)
	}
	next, err := ledger.Transition(from, to)
	if err != nil {
		return fmt.Errorf("record %s: %w", ref, err)
	}
	t.states[ref] = next
	return nil
}

// candidate marks a record that was paired with at least one candidate.
func (t *tracker) candidate(ref ledger.Ref) error {
	if t.states[ref] != ledger.StatusUnmatched {
		return nil
	}
	return t.move(ref, ledger.StatusCandidate)
}

// settle moves a record to its final status for the run. Records that were
// scored pass through SCORED; records without candidates go straight to
// DISCREPANT.
func (t *tracker) settle(ref ledger.Ref, final ledger.Status) error {
	if t.states[ref] == ledger.StatusCandidate {
		if err := t.move(ref, ledger.StatusScored); err != nil {
			return err
		}
	}
	return t.move(ref, final)
}
