package ledger

import (
	"database/sql"
	"errors"
	"time"

	"github.com/loopguard/loopguard/internal/model"
)

// ActiveCooldown returns the unexpired cooldown for a job, or nil.
func (l *Ledger) ActiveCooldown(jobID string, now time.Time) (*model.CooldownEntry, error) {
	entry, err := l.cooldownEntry(jobID)
	if err != nil || entry == nil {
		return nil, err
	}
	if !entry.Active(now) {
		return nil, nil
	}
	return entry, nil
}

// cooldownEntry returns the cooldown row regardless of expiry. Expired
// entries are kept for their strike count, which drives exponential backoff.
func (l *Ledger) cooldownEntry(jobID string) (*model.CooldownEntry, error) {
	row := l.db.QueryRow(
		`SELECT job_id, until, reason, strikes FROM cooldowns WHERE job_id = ?`, jobID,
	)

	var entry model.CooldownEntry
	var until int64
	var reason string
	err := row.Scan(&entry.JobID, &until, &reason, &entry.Strikes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StorageError{Op: "cooldown", Err: err}
	}
	entry.Until = time.UnixMilli(until).UTC()
	entry.Reason = model.Reason(reason)
	return &entry, nil
}

// SetCooldown records a new cooldown for a job, replacing any previous one
// and incrementing the strike count.
func (l *Ledger) SetCooldown(jobID string, until time.Time, reason model.Reason) error {
	_, err := l.db.Exec(
		`INSERT INTO cooldowns (job_id, until, reason, strikes) VALUES (?, ?, ?, 1)
		 ON CONFLICT(job_id) DO UPDATE SET until = excluded.until, reason = excluded.reason, strikes = strikes + 1`,
		jobID, until.UnixMilli(), string(reason),
	)
	if err != nil {
		return &model.StorageError{Op: "set-cooldown", Err: err}
	}
	return nil
}
