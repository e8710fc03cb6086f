package model

import "time"

// Effect is the admission outcome for a proposed action.
type Effect string

const (
	Allow    Effect = "allow"
	Deny     Effect = "deny"
	Cooldown Effect = "cooldown"
)

// Reason is the machine-readable code explaining a deny or cooldown.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonDuplicateLoop      Reason = "duplicate-loop"
	ReasonRateLimit          Reason = "rate-limit"
	ReasonMaxSteps           Reason = "max-steps"
	ReasonMaxDuration        Reason = "max-duration"
	ReasonJobTerminal        Reason = "job-terminal"
	ReasonStorageUnavailable Reason = "storage-unavailable"
)

// Decision is the result of evaluating a proposed action against a job's
// history. Until is set only for cooldown decisions.
type Decision struct {
	Effect Effect
	Reason Reason
	Detail string
	Until  time.Time
}

// Allowed returns true if the decision permits execution.
func (d Decision) Allowed() bool {
	return d.Effect == Allow
}

// RetryAfter returns the remaining cooldown duration, or zero for
// non-cooldown decisions.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Effect != Cooldown || !d.Until.After(now) {
		return 0
	}
	return d.Until.Sub(now)
}

// Outcome is the recorded disposition of one action attempt.
type Outcome string

const (
	OutcomeAllowed   Outcome = "allowed"
	OutcomeDenied    Outcome = "denied"
	OutcomeCooldown  Outcome = "cooldown"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// TerminalState marks a job as finished by its controlling caller.
type TerminalState string

const (
	TerminalNone      TerminalState = ""
	TerminalAborted   TerminalState = "aborted"
	TerminalCompleted TerminalState = "completed"
)

// ActionRecord is one attempted action within a job. Records are
// append-only: only Outcome may change after insertion.
type ActionRecord struct {
	JobID     string    `json:"job_id"`
	Step      int64     `json:"step"`
	Signature string    `json:"signature"`
	Tool      string    `json:"tool"`
	Timestamp time.Time `json:"ts"`
	Outcome   Outcome   `json:"outcome"`
}

// CooldownEntry is an active admission restriction on a job.
// Strikes counts how many cooldowns the job has accumulated, feeding
// exponential backoff.
type CooldownEntry struct {
	JobID   string    `json:"job_id"`
	Until   time.Time `json:"until"`
	Reason  Reason    `json:"reason"`
	Strikes int       `json:"strikes"`
}

// Active returns true if the cooldown has not yet expired.
func (c CooldownEntry) Active(now time.Time) bool {
	return c.Until.After(now)
}

// StaleJob describes a job with no recent activity, as seen by the Watchdog.
type StaleJob struct {
	JobID    string    `json:"job_id"`
	LastStep int64     `json:"last_step"`
	LastSeen time.Time `json:"last_seen"`
}
