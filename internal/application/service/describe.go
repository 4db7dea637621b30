package service

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/normalizer"
)

// amountKeys are detail keys holding minor-unit amounts.
var amountKeys = map[string]bool{
	"amount_a":      true,
	"amount_b":      true,
	"amount_delta":  true,
	"amount_minor":  true,
	"target_amount": true,
	"parts_sum":     true,
}

// Describe renders a match and its discrepancies as plain text. The output
// depends only on its inputs, so it doubles as the explanation of record
// when no generative explainer is available.
func Describe(match ledger.Match, discrepancies []ledger.Discrepancy) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s match %s is %s with confidence %.2f.", match.Kind, match.ID, match.Status, match.Confidence)
	if len(match.SideARefs) > 0 {
		fmt.Fprintf(&b, " Source A: %s.", strings.Join(match.SideARefs, ", "))
	}
	if len(match.SideBRefs) > 0 {
		fmt.Fprintf(&b, " Source B: %s.", strings.Join(match.SideBRefs, ", "))
	}
	if !match.Active() {
		fmt.Fprintf(&b, " Superseded by %s.", match.SupersededBy)
	}

	if len(discrepancies) == 0 {
		b.WriteString(" No discrepancies.")
		return b.String()
	}

	sorted := make([]ledger.Discrepancy, len(discrepancies))
	copy(sorted, discrepancies)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Severity.Rank() != sorted[j].Severity.Rank() {
			return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, d := range sorted {
		fmt.Fprintf(&b, "\n- %s %s (%s)", d.Severity, d.Type, d.Status)
		if detail := describeDetail(d.Detail); detail != "" {
			b.WriteString(": ")
			b.WriteString(detail)
		}
		if d.SuggestedAction != "" {
			fmt.Fprintf(&b, ". Suggested: %s", d.SuggestedAction)
		}
	}
	return b.String()
}

func describeDetail(detail map[string]any) string {
	if len(detail) == 0 {
		return ""
	}
	currency, _ := detail["currency"].(string)

	keys := make([]string, 0, len(detail))
	for k := range detail {
		if k == "currency" && currency != "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+describeValue(k, detail[k], currency))
	}
	return strings.Join(parts, ", ")
}

func describeValue(key string, v any, currency string) string {
	if amountKeys[key] && currency != "" {
		if minor, ok := asInt64(v); ok {
			return normalizer.FormatMinor(minor, currency) + " " + currency
		}
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		return fmt.Sprintf("%d item(s)", rv.Len())
	}
	switch val := v.(type) {
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}

// asInt64 accepts both in-memory integers and numbers decoded from JSON.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
