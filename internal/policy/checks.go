package policy

import (
	"fmt"
	"time"

	"github.com/loopguard/loopguard/internal/model"
)

// CheckResult is the outcome of one admission check.
type CheckResult struct {
	Exceeded bool
	Current  int64
	Limit    int64
	Reason   string
}

// checkSteps compares a job's total recorded steps against the cap.
func checkSteps(stepCount int64, maxSteps int) CheckResult {
	if stepCount < int64(maxSteps) {
		return CheckResult{}
	}
	return CheckResult{
		Exceeded: true,
		Current:  stepCount,
		Limit:    int64(maxSteps),
		Reason:   fmt.Sprintf("step limit reached: %d/%d steps recorded", stepCount, maxSteps),
	}
}

// checkDuration compares elapsed time since the job's first step against
// the cap. Jobs with no history never exceed.
func checkDuration(firstAt, now time.Time, maxDuration time.Duration) CheckResult {
	if firstAt.IsZero() {
		return CheckResult{}
	}
	elapsed := now.Sub(firstAt)
	if elapsed < maxDuration {
		return CheckResult{}
	}
	return CheckResult{
		Exceeded: true,
		Current:  int64(elapsed),
		Limit:    int64(maxDuration),
		Reason:   fmt.Sprintf("duration limit reached: %s elapsed >= %s max", elapsed.Round(time.Second), maxDuration),
	}
}

// checkDuplicates counts occurrences of sig among the last window records.
// The proposed action counts as one more occurrence; exactly hitting the
// threshold trips the check.
func checkDuplicates(recent []model.ActionRecord, sig string, window, threshold int) CheckResult {
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	count := 0
	for _, rec := range recent {
		if rec.Signature == sig {
			count++
		}
	}
	if count+1 < threshold {
		return CheckResult{}
	}
	return CheckResult{
		Exceeded: true,
		Current:  int64(count + 1),
		Limit:    int64(threshold),
		Reason:   fmt.Sprintf("duplicate action: %d occurrences within last %d steps (threshold %d)", count+1, window, threshold),
	}
}

// checkRate compares prior invocations of a tool within the sliding window
// against the per-tool cap. Every recorded attempt counts, denied ones
// included.
func checkRate(toolCount, limit int, window time.Duration, tool string) CheckResult {
	if toolCount < limit {
		return CheckResult{}
	}
	return CheckResult{
		Exceeded: true,
		Current:  int64(toolCount),
		Limit:    int64(limit),
		Reason:   fmt.Sprintf("rate limit exceeded: %d/%d calls to %q in %s window", toolCount, limit, tool, window),
	}
}
