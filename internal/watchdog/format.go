package watchdog

import (
	"encoding/json"
	"fmt"
)

// FormatText renders an alert as a single human-readable log line.
func FormatText(a Alert) string {
	return fmt.Sprintf("stale job %s: idle %ds since step %d (last activity %s)",
		a.JobID, a.IdleSeconds, a.LastStep, a.LastSeen.Format("2006-01-02T15:04:05Z"))
}

// FormatJSON renders an alert as a single JSON line for machine consumers.
func FormatJSON(a Alert) string {
	b, err := json.Marshal(a)
	if err != nil {
		return FormatText(a)
	}
	return string(b)
}
