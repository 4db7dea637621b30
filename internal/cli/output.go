package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

// PrintRunSummary prints the outcome of one reconciliation run
func PrintRunSummary(w io.Writer, summary *service.RunSummary) {
	s := summary.Stats
	fmt.Fprintf(w, "reconciler: run %s (account %s, as of %s)\n",
		summary.RunID, summary.AccountID, summary.AsOf.UTC().Format(time.RFC3339))
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Records:  A=%d B=%d Invalid=%d Duplicates=%d Excluded=%d\n",
		s.SideA, s.SideB, s.Invalid, s.Duplicates, s.Excluded)
	fmt.Fprintf(w, "Matches:  Exact=%d Fuzzy=%d Split=%d Unmatched=%d\n",
		s.Exact, s.Fuzzy, s.Split, s.Unmatched)
	fmt.Fprintf(w, "Reruns:   Reaffirmed=%d Superseded=%d\n", s.Reaffirmed, s.Superseded)
	fmt.Fprintf(w, "Discrepancies: High=%d Medium=%d Low=%d\n", s.High, s.Medium, s.Low)
	fmt.Fprintf(w, "Match rate: %.1f%% (auto %.1f%%) | Net difference: %d minor units\n",
		s.MatchRate*100, s.AutoMatchRate*100, s.NetDifference)

	if len(summary.Discrepancies) > 0 {
		fmt.Fprintln(w)
		printDiscrepancyTable(w, summary.Discrepancies)
	}
}

// PrintMatches prints one page of matches
func PrintMatches(w io.Writer, result *storage.MatchListResult) {
	if len(result.Matches) == 0 {
		fmt.Fprintln(w, "no matches found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKind\tStatus\tConfidence\tSource A\tSource B")
	for _, m := range result.Matches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			m.ID, m.Kind, m.Status, m.Confidence, joinRefs(m.SideARefs), joinRefs(m.SideBRefs))
	}
	tw.Flush()
	printPage(w, len(result.Matches), result.TotalCount, result.Offset)
}

// PrintMatchDetail prints a match with its discrepancies and resolutions
func PrintMatchDetail(w io.Writer, detail *service.MatchDetail) {
	m := detail.Match
	fmt.Fprintf(w, "Match %s\n", m.ID)
	fmt.Fprintf(w, "  Kind: %s | Status: %s | Confidence: %.2f\n", m.Kind, m.Status, m.Confidence)
	fmt.Fprintf(w, "  Source A: %s\n", joinRefs(m.SideARefs))
	fmt.Fprintf(w, "  Source B: %s\n", joinRefs(m.SideBRefs))
	if m.SupersededBy != "" {
		fmt.Fprintf(w, "  Superseded by: %s\n", m.SupersededBy)
	}

	if len(detail.Discrepancies) > 0 {
		fmt.Fprintln(w)
		printDiscrepancyTable(w, detail.Discrepancies)
	}

	if len(detail.Resolutions) > 0 {
		fmt.Fprintln(w, "\nResolutions:")
		for _, r := range detail.Resolutions {
			fmt.Fprintf(w, "  - %s %s by %s", r.ResolvedAt.UTC().Format(time.RFC3339), r.Action, orDash(r.ResolvedBy))
			if r.Notes != "" {
				fmt.Fprintf(w, ": %s", sanitizeInline(r.Notes))
			}
			fmt.Fprintln(w)
		}
	}
}

// PrintDiscrepancies prints one page of discrepancies
func PrintDiscrepancies(w io.Writer, result *storage.DiscrepancyListResult) {
	if len(result.Discrepancies) == 0 {
		fmt.Fprintln(w, "no discrepancies found")
		return
	}
	printDiscrepancyTable(w, result.Discrepancies)
	printPage(w, len(result.Discrepancies), result.TotalCount, result.Offset)
}

// PrintResolution prints a recorded resolution
func PrintResolution(w io.Writer, result *service.ResolveResult) {
	r := result.Resolution
	fmt.Fprintf(w, "Resolved discrepancy %s with %s\n", r.DiscrepancyID, r.Action)
	fmt.Fprintf(w, "Match %s is now %s\n", r.MatchID, result.MatchStatus)
}

// PrintExplanation prints the prose for a match
func PrintExplanation(w io.Writer, exp *service.Explanation) {
	fmt.Fprintf(w, "Match %s (%s)\n\n%s\n", exp.MatchID, exp.Source, exp.Text)
}

// PrintRuns prints recent runs
func PrintRuns(w io.Writer, runs []storage.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tStarted (UTC)\tAs Of (UTC)\tStatus\tMatches\tDiscrepancies\tError")
	for _, r := range runs {
		s := r.Stats
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID,
			r.StartedAt.UTC().Format(time.RFC3339),
			r.AsOf.UTC().Format(time.RFC3339),
			r.Status,
			s.Exact+s.Fuzzy+s.Split+s.Unmatched,
			s.High+s.Medium+s.Low,
			sanitizeInline(r.ErrorMessage),
		)
	}
	tw.Flush()
}

func printDiscrepancyTable(w io.Writer, discrepancies []ledger.Discrepancy) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMatch\tType\tSeverity\tStatus\tSuggested Action")
	for _, d := range discrepancies {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.MatchID, d.Type, d.Severity, d.Status, orDash(d.SuggestedAction))
	}
	tw.Flush()
}

func printPage(w io.Writer, shown, total, offset int) {
	if total > shown {
		fmt.Fprintf(w, "\nShowing %d-%d of %d\n", offset+1, offset+shown, total)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinRefs(refs []string) string {
	if len(refs) == 0 {
		return "-"
	}
	return strings.Join(refs, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	return strings.ReplaceAll(cleaned, "\r", " ")
}
