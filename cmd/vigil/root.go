package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yairfalse/vigil/config"
)

var (
	version = "0.1.0"

	cfgPath string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "vigil",
		Short: "Cloud security monitoring and automated response",
		Long: `Vigil - Cloud Security Guardian

Vigil watches your cloud estate for security events, scores resources
for risk, mines event history for attack patterns, and executes
automated responses to critical events and anomalies.`,
		Version: version,
		PersistentPreRun: func(*cobra.Command, []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Vigil {{.Version}} - Cloud Security Guardian
`)
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// loadConfig reads the config file, or builds a default config for the
// given provider and region when no file is set
func loadConfig(provider, region string) (*config.Config, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	cfg := config.Default(provider, region)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
