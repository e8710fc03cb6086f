package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loopguard/loopguard/internal/model"
)

// MarkTerminal records that a job finished. Terminal markers are sticky:
// once set, the state cannot change.
func (l *Ledger) MarkTerminal(jobID string, state model.TerminalState) error {
	if err := model.ValidateJobID(jobID); err != nil {
		return err
	}
	switch state {
	case model.TerminalAborted, model.TerminalCompleted:
	default:
		return fmt.Errorf("ledger: invalid terminal state %q", state)
	}

	_, err := l.db.Exec(
		`INSERT INTO terminal (job_id, state, ts) VALUES (?, ?, ?)
		 ON CONFLICT(job_id) DO NOTHING`,
		jobID, string(state), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return &model.StorageError{Op: "mark-terminal", Err: err}
	}
	return nil
}

// TerminalState returns the terminal marker for a job, or TerminalNone.
func (l *Ledger) TerminalState(jobID string) (model.TerminalState, error) {
	row := l.db.QueryRow(`SELECT state FROM terminal WHERE job_id = ?`, jobID)

	var state string
	err := row.Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TerminalNone, nil
	}
	if err != nil {
		return model.TerminalNone, &model.StorageError{Op: "terminal", Err: err}
	}
	return model.TerminalState(state), nil
}
