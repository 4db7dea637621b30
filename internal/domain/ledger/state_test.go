package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusUnmatched, StatusCandidate, true},
		{StatusCandidate, StatusScored, true},
		{StatusScored, StatusMatched, true},
		{StatusScored, StatusDiscrepant, true},
		{StatusUnmatched, StatusDiscrepant, true},
		{StatusMatched, StatusResolved, true},
		{StatusDiscrepant, StatusResolved, true},
		{StatusDiscrepant, StatusIgnored, true},
		{StatusUnmatched, StatusMatched, false},
		{StatusUnmatched, StatusResolved, false},
		{StatusResolved, StatusDiscrepant, false},
		{StatusIgnored, StatusMatched, false},
		{StatusCandidate, StatusMatched, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition_Error(t *testing.T) {
	got, err := Transition(StatusResolved, StatusMatched)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusResolved, got)

	got, err = Transition(StatusScored, StatusMatched)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, got)
}

func TestStatus_TerminalAndSettled(t *testing.T) {
	assert.True(t, StatusResolved.Terminal())
	assert.True(t, StatusIgnored.Terminal())
	assert.False(t, StatusDiscrepant.Terminal())

	assert.True(t, StatusMatched.Settled())
	assert.True(t, StatusIgnored.Settled())
	assert.False(t, StatusDiscrepant.Settled())
}

func TestSeverity_RaiseAndCap(t *testing.T) {
	assert.Equal(t, SeverityMedium, SeverityLow.Raise())
	assert.Equal(t, SeverityHigh, SeverityMedium.Raise())
	assert.Equal(t, SeverityHigh, SeverityHigh.Raise())
	assert.Equal(t, SeverityMedium, SeverityHigh.Cap(SeverityMedium))
	assert.Equal(t, SeverityLow, SeverityLow.Cap(SeverityMedium))
}

func TestMatch_Validate(t *testing.T) {
	t.Run("empty match", func(t *testing.T) {
		m := &Match{ID: "m1"}
		assert.Error(t, m.Validate())
	})

	t.Run("split with many on both sides", func(t *testing.T) {
		m := &Match{ID: "m2", Kind: KindPartialSplit, SideARefs: []string{"a1", "a2"}, SideBRefs: []string{"b1", "b2"}}
		assert.Error(t, m.Validate())
	})

	t.Run("split one to many", func(t *testing.T) {
		m := &Match{ID: "m3", Kind: KindPartialSplit, SideARefs: []string{"a1"}, SideBRefs: []string{"b1", "b2"}, Confidence: 0.8}
		assert.NoError(t, m.Validate())
	})

	t.Run("unmatched one side", func(t *testing.T) {
		m := &Match{ID: "m4", Kind: KindUnmatched, SideBRefs: []string{"b1"}}
		assert.NoError(t, m.Validate())
	})
}

func TestResolutionAction(t *testing.T) {
	assert.True(t, ActionAdjustAmount.Valid())
	assert.False(t, ResolutionAction("delete").Valid())
	assert.Equal(t, StatusIgnored, ActionIgnorePermanently.TargetStatus())
	assert.Equal(t, StatusResolved, ActionMarkAsExpected.TargetStatus())
}
