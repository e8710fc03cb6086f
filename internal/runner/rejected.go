package runner

import (
	"fmt"

	"github.com/loopguard/loopguard/internal/model"
)

// RejectedError is returned when admission is not granted. The underlying
// action was not executed. Reason is machine-readable so callers can react
// distinctly (abort on max-steps, back off on cooldown).
type RejectedError struct {
	JobID    string
	Tool     string
	Decision model.Decision
	Err      error // underlying cause for storage-unavailable rejections
}

func (e *RejectedError) Error() string {
	if e.Decision.Detail != "" {
		return fmt.Sprintf("loopguard blocked %s/%s (%s): %s", e.JobID, e.Tool, e.Decision.Reason, e.Decision.Detail)
	}
	return fmt.Sprintf("loopguard blocked %s/%s (%s)", e.JobID, e.Tool, e.Decision.Reason)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}
