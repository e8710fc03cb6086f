// Package runner is the interception point agents call to perform a
// guarded action. It consults the policy engine, records exactly one
// ledger record per attempt, executes allowed actions, and reports their
// outcome back to the ledger.
package runner

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loopguard/loopguard/internal/config"
	"github.com/loopguard/loopguard/internal/ledger"
	"github.com/loopguard/loopguard/internal/model"
	"github.com/loopguard/loopguard/internal/policy"
)

// ExecuteFunc performs the underlying action once admission is granted.
type ExecuteFunc func(ctx context.Context) (any, error)

// Runner serializes admission per job and enforces policy decisions.
// Safe for concurrent use across jobs; concurrent callers on the same job
// are serialized so each sees the other's records.
type Runner struct {
	ledger *ledger.Ledger
	cfg    atomic.Pointer[config.Config]

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// storageFails counts consecutive ledger failures for the
	// fail-open-after-N escape hatch.
	storageFails atomic.Int64
}

// New creates a Runner over an open ledger.
func New(l *ledger.Ledger, cfg *config.Config) *Runner {
	r := &Runner{
		ledger: l,
		locks:  make(map[string]*sync.Mutex),
	}
	r.cfg.Store(cfg)
	return r
}

// SetConfig swaps the active configuration. Used by hot-reload; in-flight
// admissions finish under the config they started with.
func (r *Runner) SetConfig(cfg *config.Config) {
	r.cfg.Store(cfg)
}

// Config returns the active configuration.
func (r *Runner) Config() *config.Config {
	return r.cfg.Load()
}

// Ledger exposes the underlying ledger for read-side tooling.
func (r *Runner) Ledger() *ledger.Ledger {
	return r.ledger
}

func (r *Runner) jobLock(jobID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	mu, ok := r.locks[jobID]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[jobID] = mu
	}
	return mu
}

// Run performs a guarded action. Every invocation attempt produces exactly
// one ledger record — denied and cooled-down attempts included, so the
// duplicate and rate counters see the full history. The wrapped execute
// error is recorded as outcome=failed and returned unchanged.
func (r *Runner) Run(ctx context.Context, jobID, sig, tool string, execute ExecuteFunc) (any, error) {
	if err := model.ValidateJobID(jobID); err != nil {
		return nil, err
	}
	cfg := r.cfg.Load()

	step, decision, err := r.admit(jobID, sig, tool, cfg)
	if err != nil {
		if _, ok := err.(*model.StorageError); ok {
			return r.storageFailure(ctx, jobID, tool, cfg, execute, err)
		}
		return nil, err
	}
	r.storageFails.Store(0)

	if !decision.Allowed() {
		return nil, &RejectedError{JobID: jobID, Tool: tool, Decision: decision}
	}

	result, execErr := execute(ctx)

	outcome := model.OutcomeSucceeded
	if execErr != nil {
		outcome = model.OutcomeFailed
	}
	if err := r.ledger.SetOutcome(jobID, step, outcome); err != nil {
		// The action already ran; losing the outcome must not mask its result.
		fmt.Fprintf(os.Stderr, "loopguard: record outcome for job %s step %d: %v\n", jobID, step, err)
	}

	return result, execErr
}

// admit evaluates and records one attempt under the job's admission lock,
// so racing callers on the same job cannot slip past the duplicate window.
func (r *Runner) admit(jobID, sig, tool string, cfg *config.Config) (int64, model.Decision, error) {
	mu := r.jobLock(jobID)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()

	h, err := r.ledger.History(jobID, tool, now, cfg.DupWindow, cfg.ToolRateWindow)
	if err != nil {
		return 0, model.Decision{}, err
	}

	decision := policy.Evaluate(h, sig, tool, now, cfg)

	step, _, err := r.ledger.Append(jobID, sig, tool, outcomeFor(decision))
	if err != nil {
		return 0, model.Decision{}, err
	}

	// A freshly triggered cooldown is persisted; an already-active one is
	// simply reported back.
	if decision.Effect == model.Cooldown && h.Cooldown == nil {
		if err := r.ledger.SetCooldown(jobID, decision.Until, decision.Reason); err != nil {
			return 0, model.Decision{}, err
		}
	}

	return step, decision, nil
}

func outcomeFor(d model.Decision) model.Outcome {
	switch d.Effect {
	case model.Allow:
		return model.OutcomeAllowed
	case model.Cooldown:
		return model.OutcomeCooldown
	default:
		return model.OutcomeDenied
	}
}

// storageFailure applies the configured fail-closed/fail-open policy when
// the ledger is unreachable. Fail-open executes without history — a
// deliberate availability trade recorded in the logs.
func (r *Runner) storageFailure(ctx context.Context, jobID, tool string, cfg *config.Config, execute ExecuteFunc, cause error) (any, error) {
	fails := r.storageFails.Add(1)

	if cfg.FailOpenAfter > 0 && fails > int64(cfg.FailOpenAfter) {
		fmt.Fprintf(os.Stderr, "loopguard: failing open for job %s tool %s after %d consecutive storage failures: %v\n",
			jobID, tool, fails, cause)
		return execute(ctx)
	}

	return nil, &RejectedError{
		JobID: jobID,
		Tool:  tool,
		Decision: model.Decision{
			Effect: model.Deny,
			Reason: model.ReasonStorageUnavailable,
			Detail: cause.Error(),
		},
		Err: cause,
	}
}

// Admit evaluates and records one attempt without executing anything.
// Remote surfaces use it when execution happens in the caller's process:
// the caller admits, runs the tool itself, then calls Report with the
// returned step.
func (r *Runner) Admit(jobID, sig, tool string) (int64, model.Decision, error) {
	if err := model.ValidateJobID(jobID); err != nil {
		return 0, model.Decision{}, err
	}
	step, decision, err := r.admit(jobID, sig, tool, r.cfg.Load())
	if err != nil {
		if _, ok := err.(*model.StorageError); ok {
			// No execute callback to fail open into; remote admits always
			// fail closed on storage errors.
			return 0, model.Decision{
				Effect: model.Deny,
				Reason: model.ReasonStorageUnavailable,
				Detail: err.Error(),
			}, err
		}
		return 0, model.Decision{}, err
	}
	r.storageFails.Store(0)
	return step, decision, nil
}

// Report records the execution outcome of a previously admitted step.
func (r *Runner) Report(jobID string, step int64, success bool) error {
	outcome := model.OutcomeSucceeded
	if !success {
		outcome = model.OutcomeFailed
	}
	return r.ledger.SetOutcome(jobID, step, outcome)
}

// Check evaluates a proposed action without recording anything (dry-run).
func (r *Runner) Check(jobID, sig, tool string) (model.Decision, error) {
	if err := model.ValidateJobID(jobID); err != nil {
		return model.Decision{}, err
	}
	cfg := r.cfg.Load()
	now := time.Now().UTC()

	h, err := r.ledger.History(jobID, tool, now, cfg.DupWindow, cfg.ToolRateWindow)
	if err != nil {
		return model.Decision{
			Effect: model.Deny,
			Reason: model.ReasonStorageUnavailable,
			Detail: err.Error(),
		}, err
	}
	return policy.Evaluate(h, sig, tool, now, cfg), nil
}

// MarkTerminal records that a job finished. Subsequent admissions are
// denied with reason job-terminal.
func (r *Runner) MarkTerminal(jobID string, state model.TerminalState) error {
	return r.ledger.MarkTerminal(jobID, state)
}
