// Package loopguard provides in-process admission control for Go agent
// frameworks. It wraps tool functions, checks each proposed action against
// the job's execution history (duplicate loops, step and duration budgets,
// per-tool rate limits), and records every attempt in a durable ledger a
// separate watchdog can scan for stalled jobs.
//
// Usage:
//
//	lg, err := loopguard.New(loopguard.WithJob("render-batch-7"))
//	wrapped := lg.Wrap(myTool)
//	result, err := wrapped(ctx, loopguard.Action{
//	    Tool: "fetch",
//	    Args: map[string]any{"url": "https://example.com"},
//	})
//
// A rejection surfaces as *RejectedError with a machine-readable reason
// code; cooldown rejections carry a retry-after duration. The SDK links
// directly against internal packages for zero-subprocess overhead.
package loopguard
