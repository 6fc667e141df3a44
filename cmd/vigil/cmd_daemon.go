package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/yairfalse/vigil/api"
	"github.com/yairfalse/vigil/guardian"
	_ "github.com/yairfalse/vigil/providers/aws"
	_ "github.com/yairfalse/vigil/providers/static"
	"github.com/yairfalse/vigil/telemetry"
)

var (
	daemonProvider string
	daemonRegion   string
	daemonAddr     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the monitoring pipeline",
	Long: `Run Vigil in daemon mode.

The daemon runs five supervised loops: resource discovery, event
ingestion, model auditing, threat intel refresh and response draining.
State is served over the HTTP API, metrics over /metrics, and live
events over a websocket stream. Shuts down gracefully on SIGTERM/SIGINT,
draining queued responses first.`,
	Example: `  vigil daemon                                  # static connector, local demo
  vigil daemon --provider aws --region eu-west-1
  vigil daemon --config vigil.yaml --listen :9000`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonProvider, "provider", "static", "Connector to run when no config file is given")
	daemonCmd.Flags().StringVar(&daemonRegion, "region", "us-east-1", "Cloud region")
	daemonCmd.Flags().StringVar(&daemonAddr, "listen", "", "API listen address (overrides config)")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(daemonProvider, daemonRegion)
	if err != nil {
		return err
	}
	if daemonAddr != "" {
		cfg.API.Addr = daemonAddr
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownOTEL, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "vigil",
		ServiceVersion: version,
		OTELEndpoint:   cfg.Telemetry.OTELEndpoint,
		Insecure:       true,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = shutdownOTEL(shutdownCtx)
	}()

	g, err := guardian.New(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("failed to build guardian: %w", err)
	}
	defer func() { _ = g.Close() }()

	server := api.NewServer(g, cfg.API.Addr)

	var group run.Group
	{
		loopCtx, loopCancel := context.WithCancel(ctx)
		group.Add(func() error {
			return g.Run(loopCtx)
		}, func(error) {
			loopCancel()
		})
	}
	{
		apiCtx, apiCancel := context.WithCancel(ctx)
		group.Add(func() error {
			return server.Start(apiCtx)
		}, func(error) {
			apiCancel()
		})
	}

	return group.Run()
}
