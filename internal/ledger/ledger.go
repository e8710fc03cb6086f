// Package ledger is the durable, append-only store of action attempts per
// job. SQLite in WAL mode is the source of truth; a per-job ring buffer
// caches the trailing records the policy engine reads on every admission.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loopguard/loopguard/internal/model"
)

// ringCapacity bounds the in-memory cache of trailing records per job.
// Recent falls back to the store for windows larger than this.
const ringCapacity = 64

// Ledger stores ActionRecords, cooldowns, terminal markers, and watchdog
// alert markers. Safe for concurrent use; appends to different jobs never
// contend.
type Ledger struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	rings map[string]*ring
}

// Open creates or opens the ledger database at path and runs migrations.
// The database is opened in WAL mode with full synchronous writes so a
// crash mid-append never produces a gap or duplicate step.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, &model.StorageError{Op: "open", Err: err}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &model.StorageError{Op: "open", Err: err}
	}
	// Serialize all access through one connection: pooled connections give
	// deferred transactions independent snapshots, so a same-job writer race
	// surfaces as an immediate SQLITE_BUSY that busy_timeout cannot retry.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, &model.StorageError{Op: "open", Err: fmt.Errorf("%s: %w", pragma, err)}
		}
	}

	l := &Ledger{
		db:    db,
		locks: make(map[string]*sync.Mutex),
		rings: make(map[string]*ring),
	}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS actions (
		job_id    TEXT    NOT NULL,
		step      INTEGER NOT NULL,
		signature TEXT    NOT NULL,
		tool      TEXT    NOT NULL,
		ts        INTEGER NOT NULL,
		outcome   TEXT    NOT NULL,
		PRIMARY KEY (job_id, step)
	);
	CREATE INDEX IF NOT EXISTS idx_actions_job_tool_ts ON actions (job_id, tool, ts);
	CREATE TABLE IF NOT EXISTS cooldowns (
		job_id  TEXT    PRIMARY KEY,
		until   INTEGER NOT NULL,
		reason  TEXT    NOT NULL,
		strikes INTEGER NOT NULL DEFAULT 1
	);
	CREATE TABLE IF NOT EXISTS terminal (
		job_id TEXT    PRIMARY KEY,
		state  TEXT    NOT NULL,
		ts     INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS watchdog_alerts (
		job_id     TEXT    PRIMARY KEY,
		last_step  INTEGER NOT NULL,
		alerted_at INTEGER NOT NULL
	);`
	if _, err := l.db.ExecContext(context.Background(), query); err != nil {
		return &model.StorageError{Op: "migrate", Err: err}
	}
	return nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) jobLock(jobID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.locks[jobID]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[jobID] = mu
	}
	return mu
}

func (l *Ledger) jobRing(jobID string) *ring {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rings[jobID]
	if !ok {
		r = newRing(ringCapacity)
		l.rings[jobID] = r
	}
	return r
}

// Append atomically assigns the next step for jobID and persists the
// record. Durable before returning. Appends to different jobs run fully in
// parallel; same-job appends serialize on an internal mutex.
func (l *Ledger) Append(jobID, sig, tool string, outcome model.Outcome) (int64, time.Time, error) {
	if err := model.ValidateJobID(jobID); err != nil {
		return 0, time.Time{}, err
	}

	mu := l.jobLock(jobID)
	mu.Lock()
	defer mu.Unlock()

	ts := time.Now().UTC()

	tx, err := l.db.Begin()
	if err != nil {
		return 0, time.Time{}, &model.StorageError{Op: "append", Err: err}
	}
	defer tx.Rollback()

	var step int64
	row := tx.QueryRow(`SELECT COALESCE(MAX(step), 0) + 1 FROM actions WHERE job_id = ?`, jobID)
	if err := row.Scan(&step); err != nil {
		return 0, time.Time{}, &model.StorageError{Op: "append", Err: err}
	}

	_, err = tx.Exec(
		`INSERT INTO actions (job_id, step, signature, tool, ts, outcome) VALUES (?, ?, ?, ?, ?, ?)`,
		jobID, step, sig, tool, ts.UnixMilli(), string(outcome),
	)
	if err != nil {
		return 0, time.Time{}, &model.StorageError{Op: "append", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, time.Time{}, &model.StorageError{Op: "append", Err: err}
	}

	l.ringAppend(jobID, model.ActionRecord{
		JobID:     jobID,
		Step:      step,
		Signature: sig,
		Tool:      tool,
		Timestamp: ts,
		Outcome:   outcome,
	})

	return step, ts, nil
}

// SetOutcome updates the terminal outcome of a previously appended record.
// Outcome is the only mutable field; signature, step, and timestamp are
// immutable once written.
func (l *Ledger) SetOutcome(jobID string, step int64, outcome model.Outcome) error {
	res, err := l.db.Exec(
		`UPDATE actions SET outcome = ? WHERE job_id = ? AND step = ?`,
		string(outcome), jobID, step,
	)
	if err != nil {
		return &model.StorageError{Op: "set-outcome", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &model.StorageError{Op: "set-outcome", Err: err}
	}
	if n == 0 {
		return fmt.Errorf("ledger: no record for job %q step %d", jobID, step)
	}

	l.ringSetOutcome(jobID, step, outcome)
	return nil
}

// ringAppend pushes a record into the job's cache, warming it first so the
// ring always mirrors the store's tail.
func (l *Ledger) ringAppend(jobID string, rec model.ActionRecord) {
	r := l.jobRing(jobID)
	if !r.warm {
		// Warming reads the store tail, which already includes this append.
		_ = l.warmRing(jobID, r)
		return
	}
	r.push(rec)
}

func (l *Ledger) ringSetOutcome(jobID string, step int64, outcome model.Outcome) {
	// Same per-job lock Append and Recent hold; the runner reports outcomes
	// outside its admission lock, so callers can race here on one job.
	mu := l.jobLock(jobID)
	mu.Lock()
	defer mu.Unlock()

	l.mu.Lock()
	r, ok := l.rings[jobID]
	l.mu.Unlock()
	if !ok || !r.warm {
		return
	}
	r.setOutcome(step, outcome)
}

// warmRing loads the trailing records for a job from the store.
func (l *Ledger) warmRing(jobID string, r *ring) error {
	recs, err := l.recentFromStore(jobID, r.capacity())
	if err != nil {
		return err
	}
	r.reset(recs)
	return nil
}

// Recent returns the last n records for a job, ordered by step ascending.
// Served from the ring cache when it covers the window; otherwise read from
// the store. O(n), never O(total history).
func (l *Ledger) Recent(jobID string, n int) ([]model.ActionRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	if n <= ringCapacity {
		mu := l.jobLock(jobID)
		mu.Lock()
		r := l.jobRing(jobID)
		if !r.warm {
			if err := l.warmRing(jobID, r); err != nil {
				mu.Unlock()
				return nil, err
			}
		}
		recs := r.last(n)
		mu.Unlock()
		return recs, nil
	}

	return l.recentFromStore(jobID, n)
}

func (l *Ledger) recentFromStore(jobID string, n int) ([]model.ActionRecord, error) {
	rows, err := l.db.Query(
		`SELECT job_id, step, signature, tool, ts, outcome
		 FROM actions WHERE job_id = ? ORDER BY step DESC LIMIT ?`,
		jobID, n,
	)
	if err != nil {
		return nil, &model.StorageError{Op: "recent", Err: err}
	}
	defer rows.Close()

	var recs []model.ActionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &model.StorageError{Op: "recent", Err: err}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "recent", Err: err}
	}

	// Reverse to step-ascending order.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func scanRecord(rows *sql.Rows) (model.ActionRecord, error) {
	var rec model.ActionRecord
	var ts int64
	var outcome string
	if err := rows.Scan(&rec.JobID, &rec.Step, &rec.Signature, &rec.Tool, &ts, &outcome); err != nil {
		return model.ActionRecord{}, err
	}
	rec.Timestamp = time.UnixMilli(ts).UTC()
	rec.Outcome = model.Outcome(outcome)
	return rec, nil
}
