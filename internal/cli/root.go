// Package cli implements the loopguard command line: config bootstrap,
// dry-run checks, ledger inspection, terminal marks, the watchdog loop,
// and the MCP server.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loopguard/loopguard/internal/config"
	"github.com/loopguard/loopguard/internal/ledger"
	"github.com/loopguard/loopguard/internal/runner"
)

var (
	flagConfig string
	flagLedger string
)

var rootCmd = &cobra.Command{
	Use:   "loopguard",
	Short: "Loop and runaway protection for autonomous agent jobs",
	Long: "Guards agent tool calls against duplicate loops, step and duration\n" +
		"runaways, and tool hammering. Every attempt lands in a durable ledger;\n" +
		"a watchdog scans it for silently stalled jobs.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config YAML (default ~/.loopguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLedger, "ledger", "", "Path to ledger database (overrides config)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadGuard opens the configured ledger and builds a runner over it.
// Callers own the returned ledger and must Close it.
func loadGuard() (*config.Config, *ledger.Ledger, *runner.Runner, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, nil, err
	}
	if flagLedger != "" {
		cfg.LedgerPath = flagLedger
	}

	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	return cfg, l, runner.New(l, cfg), nil
}
