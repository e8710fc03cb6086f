package ledger

import (
	"database/sql"
	"errors"
	"time"

	"github.com/loopguard/loopguard/internal/model"
)

// History is the snapshot of a job's state the policy engine evaluates
// against. Built in one pass so every check sees the same moment.
type History struct {
	Terminal        model.TerminalState
	Cooldown        *model.CooldownEntry // unexpired cooldown, or nil
	CooldownStrikes int                  // total cooldowns ever set, expired included
	StepCount       int64
	FirstAt         time.Time // zero if the job has no records
	Recent          []model.ActionRecord
	ToolCount       int // invocations of the proposed tool within the rate window
}

// History builds the policy engine's snapshot for a proposed action.
// dupWindow bounds the Recent slice; rateWindow bounds the tool count.
func (l *Ledger) History(jobID, tool string, now time.Time, dupWindow int, rateWindow time.Duration) (History, error) {
	var h History

	terminal, err := l.TerminalState(jobID)
	if err != nil {
		return h, err
	}
	h.Terminal = terminal

	entry, err := l.cooldownEntry(jobID)
	if err != nil {
		return h, err
	}
	if entry != nil {
		h.CooldownStrikes = entry.Strikes
		if entry.Active(now) {
			h.Cooldown = entry
		}
	}

	if err := l.stepStats(jobID, &h); err != nil {
		return h, err
	}

	h.Recent, err = l.Recent(jobID, dupWindow)
	if err != nil {
		return h, err
	}

	h.ToolCount, err = l.countToolSince(jobID, tool, now.Add(-rateWindow))
	if err != nil {
		return h, err
	}

	return h, nil
}

func (l *Ledger) stepStats(jobID string, h *History) error {
	row := l.db.QueryRow(
		`SELECT COUNT(*), COALESCE(MIN(ts), 0) FROM actions WHERE job_id = ?`, jobID,
	)
	var first int64
	if err := row.Scan(&h.StepCount, &first); err != nil {
		return &model.StorageError{Op: "history", Err: err}
	}
	if first > 0 {
		h.FirstAt = time.UnixMilli(first).UTC()
	}
	return nil
}

func (l *Ledger) countToolSince(jobID, tool string, since time.Time) (int, error) {
	row := l.db.QueryRow(
		`SELECT COUNT(*) FROM actions WHERE job_id = ? AND tool = ? AND ts >= ?`,
		jobID, tool, since.UnixMilli(),
	)
	var n int
	err := row.Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, &model.StorageError{Op: "history", Err: err}
	}
	return n, nil
}
