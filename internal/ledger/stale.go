package ledger

import (
	"database/sql"
	"errors"
	"time"

	"github.com/loopguard/loopguard/internal/model"
)

// ScanStale returns jobs whose most recent record is older than
// idleThreshold and which carry no terminal marker. Read-only; WAL readers
// never block concurrent appends.
func (l *Ledger) ScanStale(idleThreshold time.Duration, now time.Time) ([]model.StaleJob, error) {
	cutoff := now.Add(-idleThreshold).UnixMilli()

	rows, err := l.db.Query(
		`SELECT a.job_id, MAX(a.step), MAX(a.ts)
		 FROM actions a
		 LEFT JOIN terminal t ON t.job_id = a.job_id
		 WHERE t.job_id IS NULL
		 GROUP BY a.job_id
		 HAVING MAX(a.ts) <= ?
		 ORDER BY a.job_id`,
		cutoff,
	)
	if err != nil {
		return nil, &model.StorageError{Op: "scan-stale", Err: err}
	}
	defer rows.Close()

	var stale []model.StaleJob
	for rows.Next() {
		var job model.StaleJob
		var ts int64
		if err := rows.Scan(&job.JobID, &job.LastStep, &ts); err != nil {
			return nil, &model.StorageError{Op: "scan-stale", Err: err}
		}
		job.LastSeen = time.UnixMilli(ts).UTC()
		stale = append(stale, job)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "scan-stale", Err: err}
	}
	return stale, nil
}

// AlertMarker records the watchdog's last alert for a job, deduplicating
// repeated alerts for a single idle episode.
type AlertMarker struct {
	JobID     string
	LastStep  int64
	AlertedAt time.Time
}

// LastAlert returns the alert marker for a job, or nil if never alerted.
func (l *Ledger) LastAlert(jobID string) (*AlertMarker, error) {
	row := l.db.QueryRow(
		`SELECT job_id, last_step, alerted_at FROM watchdog_alerts WHERE job_id = ?`, jobID,
	)

	var m AlertMarker
	var at int64
	err := row.Scan(&m.JobID, &m.LastStep, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StorageError{Op: "last-alert", Err: err}
	}
	m.AlertedAt = time.UnixMilli(at).UTC()
	return &m, nil
}

// RecordAlert stores the watchdog's alert marker for a job.
func (l *Ledger) RecordAlert(jobID string, lastStep int64, now time.Time) error {
	_, err := l.db.Exec(
		`INSERT INTO watchdog_alerts (job_id, last_step, alerted_at) VALUES (?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET last_step = excluded.last_step, alerted_at = excluded.alerted_at`,
		jobID, lastStep, now.UnixMilli(),
	)
	if err != nil {
		return &model.StorageError{Op: "record-alert", Err: err}
	}
	return nil
}
