package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mohamedkhairy/stock-screener/internal/config"
	"github.com/mohamedkhairy/stock-screener/pkg/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "screener",
		Short: "Run stock screening rules against Financial Modeling Prep",
		Long: `screener compiles rule trees into execution plans and runs them.
Rules are read from JSON or TOML files; results are written to stdout as JSON.
Configuration comes from the environment (and a .env file when present).`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd(), newCompileCmd(), newConditionsCmd(), newRulesCmd())
	return root
}

// loadConfig loads the environment config and sends logs to stderr
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
