// Package normalizer converts raw feed records into the canonical
// NormalizedTransaction form.
//
// Normalization never fails. A record that cannot be parsed comes back with
// Invalid set and a reason, so a single bad row never aborts a run.
//
// Example usage:
//
//	n := normalizer.New(normalizer.DefaultConfig(asOf))
//	tx := n.Normalize(raw)
//	if tx.Invalid {
//		log.Printf("skipping %s: %s", tx.ExternalID, tx.InvalidReason)
//	}
package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// Config holds normalizer configuration
type Config struct {
	SideATolerance time.Duration // processor feeds carry precise timestamps
	SideBTolerance time.Duration // ledgers are often posted a day or two late
	AsOf           time.Time     // fixed reference instant for the run
}

// DefaultConfig returns the default tolerances anchored at asOf.
func DefaultConfig(asOf time.Time) Config {
	return Config{
		SideATolerance: 12 * time.Hour,
		SideBTolerance: 48 * time.Hour,
		AsOf:           asOf,
	}
}

// Normalizer turns RawTransactions into NormalizedTransactions.
type Normalizer struct {
	config Config
}

// New creates a normalizer with the given config
func New(config Config) *Normalizer {
	return &Normalizer{config: config}
}

// Normalize converts one raw record.
func (n *Normalizer) Normalize(raw ledger.RawTransaction) ledger.NormalizedTransaction {
	tx := ledger.NormalizedTransaction{
		Side:            raw.Side,
		ExternalID:      strings.TrimSpace(raw.ExternalID),
		DescriptionKey:  DescriptionKey(raw.Description),
		CounterpartyKey: CounterpartyKey(counterpartyText(raw)),
	}

	if !raw.Side.Valid() {
		return invalid(tx, fmt.Sprintf("unknown side %q", raw.Side))
	}
	if tx.ExternalID == "" {
		return invalid(tx, "missing external id")
	}

	currency, err := ParseCurrency(raw.Currency)
	if err != nil {
		return invalid(tx, err.Error())
	}
	tx.Currency = currency

	if raw.AmountMinor != nil {
		tx.AmountMinor = *raw.AmountMinor
	} else {
		amount, err := ParseAmount(raw.Amount, currency)
		if err != nil {
			return invalid(tx, err.Error())
		}
		tx.AmountMinor = amount
	}

	occurredAt, dateOnly, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return invalid(tx, err.Error())
	}
	tx.OccurredAt = occurredAt
	tx.DateOnly = dateOnly
	tx.Tolerance = n.tolerance(raw.Side, dateOnly)

	if !n.config.AsOf.IsZero() && occurredAt.After(n.config.AsOf.Add(tx.Tolerance)) {
		return invalid(tx, fmt.Sprintf("future-dated: %s is after %s", occurredAt.Format(time.RFC3339), n.config.AsOf.Format(time.RFC3339)))
	}

	if fee, ok := feeFromPayload(raw.Payload, currency); ok && fee != 0 {
		adjusted := tx.AmountMinor - fee
		if tx.AmountMinor < 0 {
			adjusted = tx.AmountMinor + fee
		}
		tx.FeeMinor = &fee
		tx.FeeAdjustedAmount = &adjusted
	}

	return tx
}

// NormalizeAll normalizes a batch, preserving order.
func (n *Normalizer) NormalizeAll(raws []ledger.RawTransaction) []ledger.NormalizedTransaction {
	out := make([]ledger.NormalizedTransaction, len(raws))
	for i, raw := range raws {
		out[i] = n.Normalize(raw)
	}
	return out
}

func (n *Normalizer) tolerance(side ledger.Side, dateOnly bool) time.Duration {
	tol := n.config.SideATolerance
	if side == ledger.SideB {
		tol = n.config.SideBTolerance
	}
	if dateOnly && tol < 24*time.Hour {
		tol = 24 * time.Hour
	}
	return tol
}

func invalid(tx ledger.NormalizedTransaction, reason string) ledger.NormalizedTransaction {
	tx.Invalid = true
	tx.InvalidReason = reason
	return tx
}

func counterpartyText(raw ledger.RawTransaction) string {
	if strings.TrimSpace(raw.Counterparty) != "" {
		return raw.Counterparty
	}
	for _, key := range []string{"customer_name", "customerName", "client_name", "name", "customer_id", "customerId", "customer", "client_id"} {
		if v := strings.TrimSpace(raw.Payload[key]); v != "" {
			return v
		}
	}
	return ""
}

// feeFromPayload reads a known processor fee. fee_minor wins over fee_amount.
func feeFromPayload(payload map[string]string, currency string) (int64, bool) {
	if v := strings.TrimSpace(payload["fee_minor"]); v != "" {
		if fee, err := strconv.ParseInt(v, 10, 64); err == nil {
			return abs(fee), true
		}
	}
	if v := strings.TrimSpace(payload["fee_amount"]); v != "" {
		if fee, err := ParseAmount(v, currency); err == nil {
			return abs(fee), true
		}
	}
	return 0, false
}

// FormatMinor renders minor units as a decimal string, e.g. 12345 USD -> "123.45".
func FormatMinor(minor int64, currency string) string {
	return decimal.New(minor, -int32(Exponent(currency))).StringFixed(int32(Exponent(currency)))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
