// Package mcp exposes the guard over the Model Context Protocol for
// agents that cannot link the Go SDK. The admit/report tool pair splits
// the guarded-run contract across the wire: the agent admits an action,
// executes it in its own process, then reports the outcome.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/loopguard/loopguard/internal/config"
	"github.com/loopguard/loopguard/internal/ledger"
	"github.com/loopguard/loopguard/internal/runner"
	"github.com/loopguard/loopguard/internal/watchdog"
)

// Config holds MCP server configuration.
type Config struct {
	ConfigPath string // guard config YAML; empty means default location
	LedgerPath string // overrides the config's ledger path when set
}

// Server wraps the MCP SDK server around the admission runner.
type Server struct {
	mcpServer *mcpsdk.Server
	runner    *runner.Runner
	watchdog  *watchdog.Watchdog
	ledger    *ledger.Ledger
}

// New creates an MCP server with a loaded config and open ledger.
func New(cfg Config) (*Server, error) {
	guardCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.LedgerPath != "" {
		guardCfg.LedgerPath = cfg.LedgerPath
	}

	l, err := ledger.Open(guardCfg.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	s := &Server{
		runner:   runner.New(l, guardCfg),
		watchdog: watchdog.New(l, guardCfg, nil),
		ledger:   l,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "loopguard",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the ledger connection.
func (s *Server) Close() error {
	return s.ledger.Close()
}

// SetConfig swaps the runtime configuration on hot-reload.
func (s *Server) SetConfig(cfg *config.Config) {
	s.runner.SetConfig(cfg)
	s.watchdog.SetConfig(cfg)
}

// registerTools adds all loopguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "loopguard_admit",
		Description: "Admit a proposed tool action against the job's execution history. Records the attempt; rejected actions return the reason and, for cooldowns, a retry-after. Execute only if allowed, then call loopguard_report with the returned step.",
	}, s.handleAdmit)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "loopguard_report",
		Description: "Report whether an admitted action succeeded or failed. Pass the step returned by loopguard_admit.",
	}, s.handleReport)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "loopguard_check",
		Description: "Check whether an action would be admitted without recording anything (dry-run).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "loopguard_terminal",
		Description: "Mark a job completed or aborted. Terminal jobs reject all further actions and stop watchdog alerts.",
	}, s.handleTerminal)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "loopguard_stale",
		Description: "Scan the ledger for stalled jobs: non-terminal jobs with no activity past the idle threshold.",
	}, s.handleStale)
}
