package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidJob is returned for malformed job identifiers.
var ErrInvalidJob = errors.New("invalid job id")

// StorageError wraps failures of the durable ledger store. Callers use it
// to apply the configured fail-closed/fail-open policy.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger storage unavailable (%s): %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// validJobID matches alphanumeric, dash, underscore, dot, and colon.
var validJobID = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// maxJobIDLen bounds identifiers so they stay usable as index keys.
const maxJobIDLen = 256

// ValidateJobID rejects empty, oversized, or traversal-prone identifiers.
func ValidateJobID(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidJob)
	}
	if len(jobID) > maxJobIDLen {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidJob, maxJobIDLen)
	}
	if strings.Contains(jobID, "..") {
		return fmt.Errorf("%w: must not contain '..'", ErrInvalidJob)
	}
	if !validJobID.MatchString(jobID) {
		return fmt.Errorf("%w: only alphanumeric, dash, underscore, dot, and colon are allowed", ErrInvalidJob)
	}
	return nil
}
