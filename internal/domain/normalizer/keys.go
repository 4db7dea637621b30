package normalizer

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	// ch_3Nx..., pi_..., txn_..., po_...
	processorIDToken = regexp.MustCompile(`^[a-z]{2,5}_[a-z0-9]{4,}$`)
	longDigitRun     = regexp.MustCompile(`^\d{6,}$`)
	digitChar        = regexp.MustCompile(`\d`)
	letterChar       = regexp.MustCompile(`[a-z]`)
)

var businessSuffixes = map[string]bool{
	"inc":         true,
	"llc":         true,
	"corp":        true,
	"corporation": true,
	"ltd":         true,
	"limited":     true,
	"co":          true,
	"company":     true,
}

// DescriptionKey reduces a free-text description to a sorted, de-duplicated
// token string with processor ids and reference numbers removed.
func DescriptionKey(raw string) string {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})

	seen := make(map[string]bool, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if isNoiseToken(f) {
			continue
		}
		for _, part := range strings.Split(f, "_") {
			if part == "" || seen[part] || isNoiseToken(part) {
				continue
			}
			seen[part] = true
			tokens = append(tokens, part)
		}
	}

	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func isNoiseToken(tok string) bool {
	if processorIDToken.MatchString(tok) || longDigitRun.MatchString(tok) {
		return true
	}
	// Reference codes mix letters with several digits, e.g. "inv20240117".
	return letterChar.MatchString(tok) && len(digitChar.FindAllString(tok, -1)) >= 4
}

// CounterpartyKey lower-cases a name, drops punctuation and strips trailing
// business suffixes. An empty result means the counterparty is absent.
func CounterpartyKey(raw string) string {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	for len(fields) > 1 && businessSuffixes[fields[len(fields)-1]] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// Tokens splits a key back into its token set.
func Tokens(key string) []string {
	return strings.Fields(key)
}
