// Package cmd contains the pricewatch command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/config"
	"github.com/storefrontlabs/pricewatch/internal/logging"
)

var (
	cfgFile     string
	development bool
)

var rootCmd = &cobra.Command{
	Use:   "pricewatch",
	Short: "Validates published menu prices against storefront reality",
	Long: `pricewatch crawls the storefront with a headless browser, extracts the
prices actually shown at each configured store location, and reconciles them
against the expected price table.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&development, "dev", false, "development logging")
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Logging.Development || development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}
