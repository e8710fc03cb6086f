package loopguard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// JobHeader names the HTTP header carrying the job identity for guarded
// requests.
const JobHeader = "X-Loopguard-Job"

// Middleware returns an http.Handler that admits each request as a guarded
// action before passing to next. Requests without a job header pass
// through unguarded — the middleware protects agent traffic, not the whole
// listener. Rejections get a JSON body: 429 with Retry-After for
// cooldowns, 403 otherwise.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jobID := r.Header.Get(JobHeader)
		if jobID == "" {
			next.ServeHTTP(w, r)
			return
		}

		_, err := c.run(r.Context(), jobID, actionFromRequest(r), func(ctx context.Context, _ Action) (any, error) {
			next.ServeHTTP(w, r)
			return nil, nil
		})
		if err != nil {
			var rej *RejectedError
			if errors.As(err, &rej) {
				writeRejection(w, rej)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func writeRejection(w http.ResponseWriter, rej *RejectedError) {
	w.Header().Set("Content-Type", "application/json")
	status := http.StatusForbidden
	if rej.Decision == Cooldown && rej.RetryAfter > 0 {
		status = http.StatusTooManyRequests
		seconds := int(rej.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"blocked":  true,
		"decision": string(rej.Decision),
		"reason":   rej.Reason,
		"detail":   rej.Detail,
	})
}

// actionFromRequest maps an HTTP request to an SDK Action. Method, host,
// and path identify the action; query strings and bodies are deliberately
// excluded so retries of the same endpoint count as duplicates.
func actionFromRequest(r *http.Request) Action {
	host := r.Host
	if r.URL.Host != "" {
		host = r.URL.Host
	}
	return Action{
		Tool: "http",
		Args: map[string]any{
			"method": strings.ToLower(r.Method),
			"host":   host,
			"path":   r.URL.Path,
		},
	}
}
