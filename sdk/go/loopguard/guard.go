package loopguard

import (
	"context"
	"fmt"
)

// ToolFunc is the function signature that Wrap guards. The caller provides
// an Action describing the intended operation.
type ToolFunc func(ctx context.Context, action Action) (any, error)

// Wrap returns a ToolFunc that admits each call against the job's history
// before invoking fn. A rejected call returns *RejectedError without
// calling fn. Every attempt — allowed or not — is recorded in the ledger.
//
// With auto_wrap disabled in the configuration, Wrap returns fn unchanged.
func (c *Client) Wrap(fn ToolFunc, opts ...WrapOption) ToolFunc {
	if !c.runner.Config().AutoWrap {
		return fn
	}

	wcfg := wrapConfig{jobID: c.cfg.jobID}
	for _, o := range opts {
		o(&wcfg)
	}

	return func(ctx context.Context, action Action) (any, error) {
		jobID := wcfg.jobID
		if jobID == "" {
			return nil, fmt.Errorf("loopguard: no job set: use WithJob or WrapForJob")
		}
		return c.run(ctx, jobID, action, fn)
	}
}

// WrapTools guards a whole tool table at once, preserving keys. The usual
// integration point for agent frameworks that register tools by name.
func (c *Client) WrapTools(tools map[string]ToolFunc, opts ...WrapOption) map[string]ToolFunc {
	wrapped := make(map[string]ToolFunc, len(tools))
	for name, fn := range tools {
		wrapped[name] = c.Wrap(fn, opts...)
	}
	return wrapped
}
