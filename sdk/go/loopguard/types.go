package loopguard

import (
	"fmt"
	"time"

	"github.com/loopguard/loopguard/internal/model"
	"github.com/loopguard/loopguard/internal/runner"
	"github.com/loopguard/loopguard/internal/signature"
)

// Decision is the admission outcome for a proposed action.
type Decision string

const (
	Allow    Decision = Decision(model.Allow)
	Deny     Decision = Decision(model.Deny)
	Cooldown Decision = Decision(model.Cooldown)
)

// Reason codes carried by rejections and results.
const (
	ReasonDuplicateLoop      = string(model.ReasonDuplicateLoop)
	ReasonRateLimit          = string(model.ReasonRateLimit)
	ReasonMaxSteps           = string(model.ReasonMaxSteps)
	ReasonMaxDuration        = string(model.ReasonMaxDuration)
	ReasonJobTerminal        = string(model.ReasonJobTerminal)
	ReasonStorageUnavailable = string(model.ReasonStorageUnavailable)
)

// Action describes what a tool intends to do. Args must be JSON-encodable;
// they are canonicalized before hashing so incidental formatting never
// defeats duplicate detection.
type Action struct {
	Tool string         // invoked capability: "fetch", "shell", "file_write"
	Args map[string]any // effective arguments of the invocation
}

// signatureFor computes the deterministic signature of an action.
func signatureFor(a Action) (string, error) {
	return signature.Compute(a.Tool, a.Args)
}

// Result is an admission evaluation outcome.
type Result struct {
	Decision   Decision
	Reason     string
	Detail     string
	RetryAfter time.Duration // set for cooldown decisions
}

// Allowed returns true if the decision permits the action.
func (r Result) Allowed() bool {
	return r.Decision == Allow
}

// RejectedError is returned when the guard blocks an action. The wrapped
// tool was not executed.
type RejectedError struct {
	JobID      string
	Action     Action
	Decision   Decision
	Reason     string
	Detail     string
	RetryAfter time.Duration
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("loopguard blocked (%s): %s", e.Reason, e.Detail)
}

// fromRunnerRejection converts an internal rejection into the SDK type.
func fromRunnerRejection(a Action, rej *runner.RejectedError) *RejectedError {
	return &RejectedError{
		JobID:      rej.JobID,
		Action:     a,
		Decision:   Decision(rej.Decision.Effect),
		Reason:     string(rej.Decision.Reason),
		Detail:     rej.Decision.Detail,
		RetryAfter: rej.Decision.RetryAfter(time.Now()),
	}
}

func resultFrom(d model.Decision) Result {
	return Result{
		Decision:   Decision(d.Effect),
		Reason:     string(d.Reason),
		Detail:     d.Detail,
		RetryAfter: d.RetryAfter(time.Now()),
	}
}
