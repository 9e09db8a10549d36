package cmd

import (
	"fmt"
	"os"

	"minter-core/internal/bootstrap"
	"minter-core/pkg/config"
	"minter-core/pkg/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "minter-cli",
	Short: "Operator tool for the ETH minter",
	Long: `Inspect the minter event log, derive the minter address and query
receipts through the same consensus reader the server uses.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadResources reads the server configuration for commands that open
// the event log or the providers.
func loadResources() (config.Config, *bootstrap.Resources, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger.Init(cfg.App.Env, cfg.App.LogFormat)
	return *cfg, bootstrap.New(*cfg), nil
}
