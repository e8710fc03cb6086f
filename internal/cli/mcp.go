package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loopguard/loopguard/internal/config"
	lgmcp "github.com/loopguard/loopguard/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP guard server for agent integration",
	Long: "Runs loopguard as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes the tools: admit, report, check, terminal, stale.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv, err := lgmcp.New(lgmcp.Config{
		ConfigPath: flagConfig,
		LedgerPath: flagLedger,
	})
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	// Hot-reload admission limits while serving.
	go func() {
		_ = config.Watch(ctx, flagConfig, func(next *config.Config) {
			if flagLedger != "" {
				next.LedgerPath = flagLedger
			}
			srv.SetConfig(next)
		})
	}()

	fmt.Fprintln(os.Stderr, "loopguard MCP server running on stdio")
	return srv.Run(ctx)
}
