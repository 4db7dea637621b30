package matcher

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

var baseDate = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

// Helper to create a test transaction
func makeTx(side ledger.Side, id string, amount int64, at time.Time) *ledger.NormalizedTransaction {
	tol := 12 * time.Hour
	if side == ledger.SideB {
		tol = 48 * time.Hour
	}
	return &ledger.NormalizedTransaction{
		Side:           side,
		ExternalID:     id,
		AmountMinor:    amount,
		Currency:       "USD",
		OccurredAt:     at,
		Tolerance:      tol,
		DescriptionKey: "acme payment",
	}
}

func TestMatcher_ExactMatch(t *testing.T) {
	// Arrange
	m := NewMatcher(DefaultConfig())
	a := makeTx(ledger.SideA, "a1", 10000, baseDate)
	b := makeTx(ledger.SideB, "b1", 10000, baseDate.Add(2*time.Hour))

	// Act
	pair := m.Score(a, b)

	// Assert
	assert.Equal(t, 1.0, pair.Score)
	assert.Equal(t, 1.0, pair.SubScores.Amount)
	assert.Equal(t, 1.0, pair.SubScores.Timing)
	assert.Equal(t, 1.0, pair.SubScores.Description)
	assert.Nil(t, pair.SubScores.Counterparty)
	assert.Equal(t, int64(0), pair.AmountDelta)
	assert.Equal(t, 2*time.Hour, pair.DateDelta)
}

func TestMatcher_ArgumentOrderIrrelevant(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	a := makeTx(ledger.SideA, "a1", 10000, baseDate)
	b := makeTx(ledger.SideB, "b1", 9900, baseDate.Add(72*time.Hour))

	p1 := m.Score(a, b)
	p2 := m.Score(b, a)

	assert.Equal(t, p1.Score, p2.Score)
	assert.Equal(t, "a1", p2.A.ExternalID)
	assert.Equal(t, "b1", p2.B.ExternalID)
}

func TestMatcher_ScoreBelowOneUnlessPerfect(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	a := makeTx(ledger.SideA, "a1", 10000, baseDate)

	tests := []struct {
		name   string
		mutate func(b *ledger.NormalizedTransaction)
	}{
		{"one cent off", func(b *ledger.NormalizedTransaction) { b.AmountMinor = 10001 }},
		{"late", func(b *ledger.NormalizedTransaction) { b.OccurredAt = baseDate.Add(5 * 24 * time.Hour) }},
		{"description differs", func(b *ledger.NormalizedTransaction) { b.DescriptionKey = "acme deposit" }},
		{"counterparty partial", func(b *ledger.NormalizedTransaction) {
			b.CounterpartyKey = "acme"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a.CounterpartyKey = ""
			b := makeTx(ledger.SideB, "b1", 10000, baseDate)
			tt.mutate(b)
			if b.CounterpartyKey != "" {
				a.CounterpartyKey = "acme widgets"
			}

			pair := m.Score(a, b)

			assert.Less(t, pair.Score, 1.0)
			assert.GreaterOrEqual(t, pair.Score, 0.0)
		})
	}
}

func TestMatcher_AmountScore(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	assert.Equal(t, 1.0, m.amountScore(10000, 10000))
	// limit is max(500, 5% of 10000) = 500
	assert.InDelta(t, 0.8, m.amountScore(10000, 9900), 1e-9)
	assert.Equal(t, 0.0, m.amountScore(10000, 9000))
	// limit grows with the amount: 5% of 1,000,000 = 50,000
	assert.InDelta(t, 0.9, m.amountScore(1000000, 995000), 1e-9)
}

func TestMatcher_AmountMonotonicity(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	a := makeTx(ledger.SideA, "a1", 10000, baseDate)

	prev := math.Inf(1)
	for delta := int64(0); delta <= 800; delta += 10 {
		b := makeTx(ledger.SideB, "b1", 10000-delta, baseDate)
		got := m.Score(a, b).SubScores.Amount
		assert.LessOrEqual(t, got, prev, "delta %d", delta)
		prev = got
	}
}

func TestMatcher_FeeAdjusted(t *testing.T) {
	// Arrange: $100.00 charge, $2.90 fee, $97.10 deposit
	m := NewMatcher(DefaultConfig())
	fee := int64(290)
	net := int64(9710)
	a := makeTx(ledger.SideA, "ch_1", 10000, baseDate)
	a.FeeMinor = &fee
	a.FeeAdjustedAmount = &net
	b := makeTx(ledger.SideB, "dep_1", 9710, baseDate.Add(6*time.Hour))

	// Act
	pair := m.Score(a, b)

	// Assert
	assert.True(t, pair.FeeAdjusted)
	assert.Equal(t, 0.9, pair.SubScores.Amount)
	require.NotNil(t, pair.FeeDelta)
	assert.Equal(t, int64(0), *pair.FeeDelta)
	assert.Equal(t, int64(290), pair.AmountDelta)
	assert.Less(t, pair.Score, 1.0)
	assert.Greater(t, pair.Score, 0.8)
}

func TestMatcher_EstimatedFee(t *testing.T) {
	// Arrange: $100.00 charge with no recorded fee, $97.10 deposit a day later.
	// 2.9% + 30 predicts $3.20, within 50 cents of the $2.90 gap.
	m := NewMatcher(DefaultConfig())
	a := makeTx(ledger.SideA, "ch_1", 10000, baseDate)
	b := makeTx(ledger.SideB, "dep_1", 9710, baseDate.Add(24*time.Hour))

	// Act
	pair := m.Score(a, b)

	// Assert
	assert.True(t, pair.FeeAdjusted)
	assert.Equal(t, 0.9, pair.SubScores.Amount)
	require.NotNil(t, pair.FeeDelta)
	assert.Equal(t, int64(30), *pair.FeeDelta)
	assert.GreaterOrEqual(t, pair.Score, DefaultConfig().MatchThreshold)
}

func TestMatcher_EstimatedFeeNotApplied(t *testing.T) {
	tests := []struct {
		name    string
		deposit int64
		fee     FeePattern
		want    float64
	}{
		{name: "gap too large for the pattern", deposit: 9500, fee: DefaultFeePattern(), want: 0},
		{name: "pattern disabled", deposit: 9710, fee: FeePattern{}, want: 1 - 290.0/500.0},
		{name: "deposit above charge", deposit: 10100, fee: DefaultFeePattern(), want: 1 - 100.0/505.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Fee = tt.fee
			m := NewMatcher(cfg)
			a := makeTx(ledger.SideA, "ch_1", 10000, baseDate)
			b := makeTx(ledger.SideB, "dep_1", tt.deposit, baseDate)

			pair := m.Score(a, b)

			assert.False(t, pair.FeeAdjusted)
			assert.InDelta(t, tt.want, pair.SubScores.Amount, 1e-9)
		})
	}
}

func TestMatcher_CurrencyMismatch(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	a := makeTx(ledger.SideA, "a1", 10000, baseDate)
	b := makeTx(ledger.SideB, "b1", 10000, baseDate)
	b.Currency = "EUR"

	pair := m.Score(a, b)

	assert.True(t, pair.CurrencyMismatch)
	assert.Equal(t, 0.0, pair.SubScores.Amount)
	assert.Less(t, pair.Score, 0.6)
}

func TestMatcher_TimingScore(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	t.Run("within tighter tolerance", func(t *testing.T) {
		a := makeTx(ledger.SideA, "a1", 100, baseDate)
		b := makeTx(ledger.SideB, "b1", 100, baseDate.Add(11*time.Hour))
		assert.Equal(t, 1.0, m.Score(a, b).SubScores.Timing)
	})

	t.Run("decays past tolerance", func(t *testing.T) {
		a := makeTx(ledger.SideA, "a1", 100, baseDate)
		b := makeTx(ledger.SideB, "b1", 100, baseDate.Add(36*time.Hour))
		got := m.Score(a, b).SubScores.Timing
		// (36h - 12h) / (336h - 12h)
		assert.InDelta(t, 1-24.0/324.0, got, 1e-9)
	})

	t.Run("zero at max span", func(t *testing.T) {
		a := makeTx(ledger.SideA, "a1", 100, baseDate)
		b := makeTx(ledger.SideB, "b1", 100, baseDate.Add(15*24*time.Hour))
		assert.Equal(t, 0.0, m.Score(a, b).SubScores.Timing)
	})

	t.Run("date-only compares calendar days", func(t *testing.T) {
		a := makeTx(ledger.SideA, "a1", 100, baseDate.Add(13*time.Hour)) // 23:00
		b := makeTx(ledger.SideB, "b1", 100, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC))
		b.DateOnly = true
		pair := m.Score(a, b)
		assert.Equal(t, 24*time.Hour, pair.DateDelta)
		assert.Equal(t, 1.0, pair.SubScores.Timing)
	})
}

func TestDescriptionScore(t *testing.T) {
	assert.Equal(t, 1.0, DescriptionScore("", ""))
	assert.Equal(t, 0.0, DescriptionScore("acme", ""))
	assert.Equal(t, 1.0, DescriptionScore("acme payment", "payment acme"))
	assert.InDelta(t, 1.0/3.0, DescriptionScore("acme payment", "acme deposit"), 1e-9)
	assert.Equal(t, 0.0, DescriptionScore("acme", "globex"))
}

func TestCounterpartyScore(t *testing.T) {
	assert.Equal(t, 1.0, CounterpartyScore("acme", "acme"))
	assert.Equal(t, 0.7, CounterpartyScore("acme widgets", "acme"))
	assert.Equal(t, 0.0, CounterpartyScore("acme", "globex"))
}

func TestMatcher_CounterpartyNeutralWhenAbsent(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	a := makeTx(ledger.SideA, "a1", 10000, baseDate)
	b := makeTx(ledger.SideB, "b1", 10000, baseDate)
	a.CounterpartyKey = "acme"

	pair := m.Score(a, b)
	assert.Nil(t, pair.SubScores.Counterparty)
	assert.Equal(t, 1.0, pair.Score)

	b.CounterpartyKey = "globex"
	pair = m.Score(a, b)
	require.NotNil(t, pair.SubScores.Counterparty)
	assert.InDelta(t, 0.9, pair.Score, 1e-9)
}

func TestMatcher_Assign_GlobalGreedy(t *testing.T) {
	// Arrange: a1 is a decent match for b1, but a2 is a perfect one.
	// Per-record greedy over a1 first would steal b1.
	m := NewMatcher(DefaultConfig())
	a1 := makeTx(ledger.SideA, "a1", 10000, baseDate)
	a2 := makeTx(ledger.SideA, "a2", 10050, baseDate)
	b1 := makeTx(ledger.SideB, "b1", 10050, baseDate)
	b2 := makeTx(ledger.SideB, "b2", 9930, baseDate)

	pairs := []ScoredPair{m.Score(a1, b1), m.Score(a1, b2), m.Score(a2, b1), m.Score(a2, b2)}

	// Act
	committed := m.Assign(pairs)

	// Assert
	require.Len(t, committed, 2)
	assert.Equal(t, "a2", committed[0].A.ExternalID)
	assert.Equal(t, "b1", committed[0].B.ExternalID)
	assert.Equal(t, "a1", committed[1].A.ExternalID)
	assert.Equal(t, "b2", committed[1].B.ExternalID)
}

func TestMatcher_Assign_TieBreakByDate(t *testing.T) {
	// Two identical $50 charges three days apart, one deposit in between
	// and closer to the first.
	cfg := DefaultConfig()
	cfg.MaxDateSpan = 30 * 24 * time.Hour
	m := NewMatcher(cfg)
	a1 := makeTx(ledger.SideA, "a1", 5000, baseDate)
	a2 := makeTx(ledger.SideA, "a2", 5000, baseDate.Add(72*time.Hour))
	b := makeTx(ledger.SideB, "b1", 5000, baseDate.Add(30*time.Hour))
	a1.Tolerance = 72 * time.Hour
	a2.Tolerance = 72 * time.Hour

	pairs := []ScoredPair{m.Score(a2, b), m.Score(a1, b)}
	require.Equal(t, pairs[0].Score, pairs[1].Score)

	committed := m.Assign(pairs)

	require.Len(t, committed, 1)
	assert.Equal(t, "a1", committed[0].A.ExternalID)
}

func TestMatcher_Assign_TieBreakByID(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	a1 := makeTx(ledger.SideA, "a-2", 5000, baseDate)
	a2 := makeTx(ledger.SideA, "a-1", 5000, baseDate)
	b := makeTx(ledger.SideB, "b1", 5000, baseDate)

	committed := m.Assign([]ScoredPair{m.Score(a1, b), m.Score(a2, b)})

	require.Len(t, committed, 1)
	assert.Equal(t, "a-1", committed[0].A.ExternalID)
}

func TestMatcher_Assign_BelowThreshold(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	a := makeTx(ledger.SideA, "a1", 10000, baseDate)
	b := makeTx(ledger.SideB, "b1", 20000, baseDate.Add(10*24*time.Hour))
	b.DescriptionKey = "unrelated"

	pair := m.Score(a, b)
	require.Less(t, pair.Score, DefaultConfig().MatchThreshold)

	assert.Empty(t, m.Assign([]ScoredPair{pair}))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"weights do not sum", func(c *Config) { c.Weights.Amount = 0.9 }},
		{"negative weight", func(c *Config) { c.Weights.Amount = -0.1; c.Weights.Timing = 0.85 }},
		{"no amount tolerance", func(c *Config) { c.MaxAmountDelta = 0; c.MaxAmountDeltaPct = 0 }},
		{"no date span", func(c *Config) { c.MaxDateSpan = 0 }},
		{"fee score of one", func(c *Config) { c.FeeMatchScore = 1 }},
		{"negative fee percent", func(c *Config) { c.Fee.Percent = -0.01 }},
		{"threshold out of range", func(c *Config) { c.MatchThreshold = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
