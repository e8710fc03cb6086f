// Package watchdog detects stalled jobs — the failure mode the synchronous
// policy engine cannot see. It is schedule-agnostic: CheckStale is a pure
// scan, and Run wraps it in a ticker for deployments without an external
// scheduler.
package watchdog

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/loopguard/loopguard/internal/config"
	"github.com/loopguard/loopguard/internal/ledger"
)

// Alert reports one stalled job. Transport is the caller's concern.
type Alert struct {
	JobID       string    `json:"job_id"`
	LastStep    int64     `json:"last_step"`
	IdleSeconds int64     `json:"idle_seconds"`
	LastSeen    time.Time `json:"last_seen"`
}

// Watchdog scans the ledger for jobs with no recent activity. Read-mostly:
// its only writes are alert dedup markers, which never contend with the
// append path.
type Watchdog struct {
	ledger *ledger.Ledger
	cfg    atomic.Pointer[config.Config]
	emit   func(Alert)
}

// New creates a Watchdog. emit receives each alert exactly once per idle
// episode (or per re-alert interval for long stalls); nil emit is allowed
// for callers that only want CheckStale's return value.
func New(l *ledger.Ledger, cfg *config.Config, emit func(Alert)) *Watchdog {
	w := &Watchdog{ledger: l, emit: emit}
	w.cfg.Store(cfg)
	return w
}

// SetConfig swaps the active configuration. Used by hot-reload.
func (w *Watchdog) SetConfig(cfg *config.Config) {
	w.cfg.Store(cfg)
}

// CheckStale scans for jobs idle longer than watchdog_idle and emits one
// alert per idle episode. An episode ends when the job records new
// activity, is marked terminal, or the re-alert interval elapses.
func (w *Watchdog) CheckStale(now time.Time) ([]Alert, error) {
	cfg := w.cfg.Load()

	stale, err := w.ledger.ScanStale(cfg.WatchdogIdle, now)
	if err != nil {
		return nil, err
	}

	var alerts []Alert
	for _, job := range stale {
		marker, err := w.ledger.LastAlert(job.JobID)
		if err != nil {
			return nil, err
		}
		if marker != nil && marker.LastStep == job.LastStep && now.Sub(marker.AlertedAt) < cfg.WatchdogRealert {
			continue // already alerted for this episode
		}

		alert := Alert{
			JobID:       job.JobID,
			LastStep:    job.LastStep,
			IdleSeconds: int64(now.Sub(job.LastSeen) / time.Second),
			LastSeen:    job.LastSeen,
		}
		if err := w.ledger.RecordAlert(job.JobID, job.LastStep, now); err != nil {
			return nil, err
		}
		if w.emit != nil {
			w.emit(alert)
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// Run scans on a fixed interval until ctx is cancelled. Scan failures are
// logged and retried next tick — the watchdog never crashes on a bad scan.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.CheckStale(time.Now().UTC()); err != nil {
				fmt.Fprintf(os.Stderr, "watchdog: scan failed: %v\n", err)
			}
		}
	}
}
