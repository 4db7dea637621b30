package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

func partIDs(parts []*ledger.NormalizedTransaction) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.ExternalID
	}
	return out
}

// TestMatcher_FindSplit tests many-to-one matching
func TestMatcher_FindSplit(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	cfg := DefaultSplitConfig()

	t.Run("finds two parts summing exactly", func(t *testing.T) {
		target := makeTx(ledger.SideA, "ch_300", 30000, baseDate)
		pool := []*ledger.NormalizedTransaction{
			makeTx(ledger.SideB, "dep_1", 15000, baseDate),
			makeTx(ledger.SideB, "dep_2", 15000, baseDate),
			makeTx(ledger.SideB, "dep_3", 7500, baseDate),
		}

		result := m.FindSplit(target, pool, cfg)
		require.NotNil(t, result)

		assert.Equal(t, []string{"dep_1", "dep_2"}, partIDs(result.Parts))
		assert.True(t, result.Exact())
		assert.Equal(t, int64(30000), result.Sum)
		assert.Equal(t, 1.0, result.SubScores.Amount)
		assert.False(t, result.NetOfFees)
	})

	t.Run("prefers closer parts on equal sums", func(t *testing.T) {
		target := makeTx(ledger.SideA, "ch_300", 30000, baseDate)
		pool := []*ledger.NormalizedTransaction{
			makeTx(ledger.SideB, "dep_a", 20000, baseDate.Add(24*time.Hour)),
			makeTx(ledger.SideB, "dep_b", 10000, baseDate.Add(24*time.Hour)),
			makeTx(ledger.SideB, "dep_c", 15000, baseDate),
			makeTx(ledger.SideB, "dep_d", 15000, baseDate),
		}

		result := m.FindSplit(target, pool, cfg)
		require.NotNil(t, result)
		assert.Equal(t, []string{"dep_c", "dep_d"}, partIDs(result.Parts))
	})

	t.Run("finds three parts", func(t *testing.T) {
		target := makeTx(ledger.SideA, "ch_100", 10000, baseDate)
		pool := []*ledger.NormalizedTransaction{
			makeTx(ledger.SideB, "p1", 5000, baseDate),
			makeTx(ledger.SideB, "p2", 3000, baseDate),
			makeTx(ledger.SideB, "p3", 2000, baseDate),
		}

		result := m.FindSplit(target, pool, cfg)
		require.NotNil(t, result)
		assert.Equal(t, []string{"p1", "p2", "p3"}, partIDs(result.Parts))
	})

	t.Run("within tolerance is not exact", func(t *testing.T) {
		loose := cfg
		loose.Tolerance = 20
		target := makeTx(ledger.SideA, "ch_300", 30000, baseDate)
		pool := []*ledger.NormalizedTransaction{
			makeTx(ledger.SideB, "dep_1", 15000, baseDate),
			makeTx(ledger.SideB, "dep_2", 14990, baseDate),
		}

		result := m.FindSplit(target, pool, loose)
		require.NotNil(t, result)
		assert.False(t, result.Exact())
		assert.Equal(t, int64(10), result.Delta)
		assert.Less(t, result.SubScores.Amount, 1.0)
	})

	t.Run("nothing closes", func(t *testing.T) {
		target := makeTx(ledger.SideA, "ch_300", 30000, baseDate)
		pool := []*ledger.NormalizedTransaction{
			makeTx(ledger.SideB, "dep_1", 15000, baseDate),
			makeTx(ledger.SideB, "dep_2", 14000, baseDate),
		}
		assert.Nil(t, m.FindSplit(target, pool, cfg))
	})

	t.Run("ignores other currencies, signs and distant dates", func(t *testing.T) {
		target := makeTx(ledger.SideA, "ch_300", 30000, baseDate)
		eur := makeTx(ledger.SideB, "dep_eur", 15000, baseDate)
		eur.Currency = "EUR"
		pool := []*ledger.NormalizedTransaction{
			makeTx(ledger.SideB, "dep_1", 15000, baseDate),
			eur,
			makeTx(ledger.SideB, "dep_credit", -15000, baseDate),
			makeTx(ledger.SideB, "dep_late", 15000, baseDate.Add(10*24*time.Hour)),
		}
		assert.Nil(t, m.FindSplit(target, pool, cfg))
	})

	t.Run("batched payout net of fees", func(t *testing.T) {
		target := makeTx(ledger.SideB, "payout_1", 19400, baseDate)
		fee := int64(300)
		net := int64(9700)
		a1 := makeTx(ledger.SideA, "ch_1", 10000, baseDate)
		a1.FeeMinor, a1.FeeAdjustedAmount = &fee, &net
		a2 := makeTx(ledger.SideA, "ch_2", 10000, baseDate)
		a2.FeeMinor, a2.FeeAdjustedAmount = &fee, &net

		result := m.FindSplit(target, []*ledger.NormalizedTransaction{a1, a2}, cfg)
		require.NotNil(t, result)
		assert.True(t, result.NetOfFees)
		assert.True(t, result.Exact())
		assert.Equal(t, []string{"ch_1", "ch_2"}, partIDs(result.Parts))
	})
}

func TestSplitConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultSplitConfig().Validate())

	bad := DefaultSplitConfig()
	bad.MaxParts = 1
	assert.Error(t, bad.Validate())

	bad = DefaultSplitConfig()
	bad.MaxCandidates = 2
	assert.Error(t, bad.Validate())
}
