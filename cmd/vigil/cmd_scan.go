package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yairfalse/vigil/guardian"
	_ "github.com/yairfalse/vigil/providers/aws"
	_ "github.com/yairfalse/vigil/providers/static"
)

var (
	scanProvider string
	scanRegion   string
	scanJSON     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one monitoring pass and exit",
	Long: `Run a single discovery, ingestion and intel pass, execute any
responses it produced, and print the resulting state snapshot.`,
	Example: `  vigil scan                               # static connector
  vigil scan --provider aws --region us-east-1
  vigil scan --json`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanProvider, "provider", "static", "Connector to scan with")
	scanCmd.Flags().StringVar(&scanRegion, "region", "us-east-1", "Cloud region")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print snapshot as JSON")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(scanProvider, scanRegion)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, err := guardian.New(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("failed to build guardian: %w", err)
	}
	defer func() { _ = g.Close() }()

	snap, err := g.ScanOnce(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Printf("Resources tracked:     %d (%d high risk)\n", snap.Resources, snap.HighRiskResources)
	fmt.Printf("Events (24h):          %d (%d anomalous)\n", snap.EventsLast24h, snap.AnomaliesLast24h)
	fmt.Printf("Active threats:        %d\n", len(snap.ActiveThreats))
	fmt.Printf("Incident responses:    %d (%d pending)\n", snap.Incidents, snap.PendingResponses)
	for _, threat := range snap.ActiveThreats {
		fmt.Printf("  threat: %-20s confidence %.2f  %s\n", threat.PatternType, threat.Confidence, threat.Description)
	}
	return nil
}
