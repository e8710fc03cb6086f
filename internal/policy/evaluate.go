// Package policy is the admission decision engine. Evaluate is a pure
// function over a job-history snapshot; it never touches storage, sleeps,
// or blocks.
package policy

import (
	"fmt"
	"time"

	"github.com/loopguard/loopguard/internal/config"
	"github.com/loopguard/loopguard/internal/ledger"
	"github.com/loopguard/loopguard/internal/model"
)

// Evaluate decides whether a proposed action may run.
//
// Check order (first failing check wins, must not be changed):
//  1. Terminal marker — terminal jobs never act again
//  2. Active cooldown — returned with its remaining time
//  3. Max steps
//  4. Max duration
//  5. Duplicate window — repeated signatures trigger a cooldown
//  6. Tool rate limit — deny, or cooldown when backoff is configured
func Evaluate(h ledger.History, sig, tool string, now time.Time, cfg *config.Config) model.Decision {
	if h.Terminal != model.TerminalNone {
		return model.Decision{
			Effect: model.Deny,
			Reason: model.ReasonJobTerminal,
			Detail: fmt.Sprintf("job marked %s", h.Terminal),
		}
	}

	if h.Cooldown != nil {
		return model.Decision{
			Effect: model.Cooldown,
			Reason: h.Cooldown.Reason,
			Detail: fmt.Sprintf("cooldown active for %s", h.Cooldown.Until.Sub(now).Round(time.Second)),
			Until:  h.Cooldown.Until,
		}
	}

	if r := checkSteps(h.StepCount, cfg.MaxSteps); r.Exceeded {
		return model.Decision{Effect: model.Deny, Reason: model.ReasonMaxSteps, Detail: r.Reason}
	}

	if r := checkDuration(h.FirstAt, now, cfg.MaxDuration); r.Exceeded {
		return model.Decision{Effect: model.Deny, Reason: model.ReasonMaxDuration, Detail: r.Reason}
	}

	if r := checkDuplicates(h.Recent, sig, cfg.DupWindow, cfg.DupThreshold); r.Exceeded {
		return model.Decision{
			Effect: model.Cooldown,
			Reason: model.ReasonDuplicateLoop,
			Detail: r.Reason,
			Until:  CooldownUntil(now, h.CooldownStrikes+1, cfg),
		}
	}

	if r := checkRate(h.ToolCount, cfg.ToolRateLimit, cfg.ToolRateWindow, tool); r.Exceeded {
		if cfg.RateLimitBackoff {
			return model.Decision{
				Effect: model.Cooldown,
				Reason: model.ReasonRateLimit,
				Detail: r.Reason,
				Until:  CooldownUntil(now, h.CooldownStrikes+1, cfg),
			}
		}
		return model.Decision{Effect: model.Deny, Reason: model.ReasonRateLimit, Detail: r.Reason}
	}

	return model.Decision{Effect: model.Allow}
}

// CooldownUntil computes the cooldown expiry for the given strike count.
// Fixed policy always uses the base duration; exponential doubles per
// strike, capped at cooldown_max.
func CooldownUntil(now time.Time, strikes int, cfg *config.Config) time.Time {
	d := cfg.CooldownBase
	if cfg.CooldownPolicy == config.CooldownExponential && strikes > 1 {
		for i := 1; i < strikes && d < cfg.CooldownMax; i++ {
			d *= 2
		}
	}
	if d > cfg.CooldownMax {
		d = cfg.CooldownMax
	}
	return now.Add(d)
}
