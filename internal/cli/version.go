package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loopguard/loopguard/internal/config"
)

const version = "0.1.0"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and environment information",
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := json.MarshalIndent(versionInfo(), "", "  ")
		fmt.Println(string(out))
	},
}

// versionInfo reports the build version plus the effective config and
// ledger locations, so bug reports carry the paths that matter.
func versionInfo() map[string]string {
	configPath := flagConfig
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	ledgerPath := flagLedger
	if ledgerPath == "" {
		ledgerPath = config.DefaultLedgerPath()
		if cfg, err := config.Load(configPath); err == nil {
			ledgerPath = cfg.LedgerPath
		}
	}

	info := map[string]string{
		"name":    "loopguard",
		"version": version,
		"config":  configPath,
		"ledger":  ledgerPath,
	}
	if _, err := os.Stat(configPath); err != nil {
		info["config"] = configPath + " (not found, using defaults)"
	}
	return info
}
