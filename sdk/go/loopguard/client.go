package loopguard

import (
	"context"
	"errors"
	"fmt"

	"github.com/loopguard/loopguard/internal/config"
	"github.com/loopguard/loopguard/internal/ledger"
	"github.com/loopguard/loopguard/internal/model"
	"github.com/loopguard/loopguard/internal/runner"
)

// Client owns the ledger connection and admission pipeline for one
// embedding process. Safe for concurrent tool calls across any number of
// jobs.
type Client struct {
	cfg    clientConfig
	runner *runner.Runner
	ledger *ledger.Ledger
}

// New creates a Client with the given options, loading configuration and
// opening the action ledger.
func New(opts ...Option) (*Client, error) {
	var cc clientConfig
	for _, o := range opts {
		o(&cc)
	}

	cfg, err := config.Load(cc.configPath)
	if err != nil {
		return nil, fmt.Errorf("loopguard: load config: %w", err)
	}
	if cc.ledgerPath != "" {
		cfg.LedgerPath = cc.ledgerPath
	}

	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("loopguard: open ledger: %w", err)
	}

	return &Client{
		cfg:    cc,
		runner: runner.New(l, cfg),
		ledger: l,
	}, nil
}

// Close releases the ledger connection. Wrapped tools must not be called
// after Close.
func (c *Client) Close() error {
	return c.ledger.Close()
}

// Check evaluates an action against the job's history without recording
// anything or executing anything.
func (c *Client) Check(jobID string, action Action) (Result, error) {
	sig, err := signatureFor(action)
	if err != nil {
		return Result{}, fmt.Errorf("loopguard: compute signature: %w", err)
	}
	d, err := c.runner.Check(jobID, sig, action.Tool)
	if err != nil {
		return resultFrom(d), err
	}
	return resultFrom(d), nil
}

// MarkCompleted marks the job finished successfully. Subsequent actions
// under this job are rejected.
func (c *Client) MarkCompleted(jobID string) error {
	return c.runner.MarkTerminal(jobID, model.TerminalCompleted)
}

// MarkAborted marks the job abandoned. Subsequent actions under this job
// are rejected.
func (c *Client) MarkAborted(jobID string) error {
	return c.runner.MarkTerminal(jobID, model.TerminalAborted)
}

// SetConfig swaps the runtime configuration, for embedders that wire
// config.Watch themselves.
func (c *Client) SetConfig(cfg *config.Config) {
	c.runner.SetConfig(cfg)
}

// Run guards a single action without pre-wrapping a tool function. Unlike
// Wrap it always guards, regardless of the auto_wrap setting.
func (c *Client) Run(ctx context.Context, jobID string, action Action, fn ToolFunc) (any, error) {
	return c.run(ctx, jobID, action, fn)
}

// run executes one guarded action, translating internal rejections into
// the SDK error type.
func (c *Client) run(ctx context.Context, jobID string, action Action, fn ToolFunc) (any, error) {
	sig, err := signatureFor(action)
	if err != nil {
		return nil, fmt.Errorf("loopguard: compute signature: %w", err)
	}

	result, err := c.runner.Run(ctx, jobID, sig, action.Tool, func(ctx context.Context) (any, error) {
		return fn(ctx, action)
	})
	if err != nil {
		var rej *runner.RejectedError
		if errors.As(err, &rej) {
			return nil, fromRunnerRejection(action, rej)
		}
		return nil, err
	}
	return result, nil
}
