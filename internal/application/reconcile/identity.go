package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/classifier"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

var (
	matchNamespace       = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ledger-reconciler/match"))
	discrepancyNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ledger-reconciler/discrepancy"))
)

// matchID derives a stable id from what the match is: the account, its kind,
// its members and the findings on it. Recomputing an unchanged outcome yields
// the same id.
func matchID(accountID string, kind ledger.MatchKind, sideA, sideB []string, findings []classifier.Finding) string {
	a := append([]string(nil), sideA...)
	b := append([]string(nil), sideB...)
	sort.Strings(a)
	sort.Strings(b)

	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, fmt.Sprintf("%s/%s", f.Type, f.Severity))
	}

	name := strings.Join([]string{
		accountID,
		string(kind),
		strings.Join(a, ","),
		strings.Join(b, ","),
		strings.Join(parts, ","),
	}, "|")
	return uuid.NewSHA1(matchNamespace, []byte(name)).String()
}

func discrepancyID(matchID string, index int, t ledger.DiscrepancyType) string {
	name := fmt.Sprintf("%s|%d|%s", matchID, index, t)
	return uuid.NewSHA1(discrepancyNamespace, []byte(name)).String()
}
