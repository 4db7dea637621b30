package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var currencyExponents = map[string]int{
	"JPY": 0, "KRW": 0, "VND": 0, "CLP": 0, "ISK": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "JOD": 3, "TND": 3,
}

// Exponent returns the number of minor-unit digits for an ISO-4217 code.
func Exponent(currency string) int {
	if exp, ok := currencyExponents[currency]; ok {
		return exp
	}
	return 2
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ParseCurrency upper-cases and validates an ISO-4217 alpha code.
func ParseCurrency(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", fmt.Errorf("missing currency")
	}
	if !currencyPattern.MatchString(code) {
		return "", fmt.Errorf("invalid currency %q", raw)
	}
	return code, nil
}

// ParseAmount parses a textual amount such as "$1,234.56", "(12.00)" or
// "-5 USD" into integer minor units of the given currency.
func ParseAmount(raw, currency string) (int64, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, fmt.Errorf("missing amount")
	}

	negative := false
	if strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")") {
		negative = true
		text = text[1 : len(text)-1]
	}

	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			negative = !negative
		case r == '+' && b.Len() == 0:
		}
	}
	clean := b.String()
	if clean == "" {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}

	minor := d.Shift(int32(Exponent(currency))).Round(0)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return minor.IntPart(), nil
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
}

var dateOnlyLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
}

var unixPattern = regexp.MustCompile(`^\d{9,13}$`)

// ParseTimestamp accepts RFC3339, common local date-time layouts, date-only
// layouts and unix seconds or milliseconds. Values without a zone are UTC.
func ParseTimestamp(raw string) (t time.Time, dateOnly bool, err error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, false, fmt.Errorf("missing timestamp")
	}

	if unixPattern.MatchString(text) {
		v, _ := strconv.ParseInt(text, 10, 64)
		if len(text) == 13 {
			return time.UnixMilli(v).UTC(), false, nil
		}
		return time.Unix(v, 0).UTC(), false, nil
	}

	for _, layout := range dateTimeLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.UTC(), false, nil
		}
	}
	for _, layout := range dateOnlyLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.UTC(), true, nil
		}
	}

	return time.Time{}, false, fmt.Errorf("invalid timestamp %q", raw)
}
