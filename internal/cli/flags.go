package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/ledger-reconciler/internal/adapters/feeds"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// RunFlags are the flags of the run command
type RunFlags struct {
	AccountID   string
	SideAPath   string
	SideBPath   string
	SideAFormat string
	SideBFormat string
	AsOf        string
	JSON        bool
}

func (f *RunFlags) register(cmd *cobra.Command) {
	formats := strings.Join(feeds.Formats(), ", ")
	cmd.Flags().StringVar(&f.AccountID, "account", "", "Account to reconcile (required)")
	cmd.Flags().StringVar(&f.SideAPath, "side-a", "", "Source A feed file (required)")
	cmd.Flags().StringVar(&f.SideBPath, "side-b", "", "Source B feed file (required)")
	cmd.Flags().StringVar(&f.SideAFormat, "side-a-format", "json", "Source A feed format: "+formats)
	cmd.Flags().StringVar(&f.SideBFormat, "side-b-format", "json", "Source B feed format: "+formats)
	cmd.Flags().StringVar(&f.AsOf, "as-of", "", "Reconciliation time, RFC3339 or YYYY-MM-DD (default now)")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "Print the run summary as JSON")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("side-a")
	_ = cmd.MarkFlagRequired("side-b")
}

// ToTriggerRequest loads both feeds and builds the service request.
func (f RunFlags) ToTriggerRequest() (service.TriggerRequest, error) {
	asOf, err := ParseAsOf(f.AsOf)
	if err != nil {
		return service.TriggerRequest{}, err
	}

	sideA, err := feeds.LoadFile(f.SideAPath, f.SideAFormat, ledger.SideA)
	if err != nil {
		return service.TriggerRequest{}, fmt.Errorf("side a: %w", err)
	}
	sideB, err := feeds.LoadFile(f.SideBPath, f.SideBFormat, ledger.SideB)
	if err != nil {
		return service.TriggerRequest{}, fmt.Errorf("side b: %w", err)
	}

	return service.TriggerRequest{
		AccountID: f.AccountID,
		SideA:     sideA,
		SideB:     sideB,
		AsOf:      asOf,
	}, nil
}

// ParseAsOf accepts RFC3339 or a bare date. Empty means the zero time,
// which the service reads as now.
func ParseAsOf(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--as-of %q: expected RFC3339 or YYYY-MM-DD", value)
	}
	return t, nil
}
