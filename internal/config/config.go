// Package config holds the guard's runtime configuration. A Config is
// constructed once at startup and passed by reference into the policy
// engine, runner, and watchdog — never read ad hoc from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Cooldown policies supported by the policy engine.
const (
	CooldownFixed       = "fixed"
	CooldownExponential = "exponential"
)

// Config holds all admission and watchdog parameters.
// Zero values are filled in by DefaultConfig; Load never returns a partial
// config.
type Config struct {
	// LedgerPath is the SQLite database backing the action ledger.
	LedgerPath string `yaml:"ledger_path"`

	// MaxSteps denies any action once a job has recorded this many steps.
	MaxSteps int `yaml:"max_steps"`
	// MaxDuration denies any action once this much time has passed since
	// the job's first recorded step.
	MaxDuration time.Duration `yaml:"max_duration"`

	// DupWindow is the number of trailing records inspected for repeats.
	DupWindow int `yaml:"dup_window"`
	// DupThreshold triggers a cooldown when the proposed action would be
	// the Nth occurrence of its signature within the window.
	DupThreshold int `yaml:"dup_threshold"`

	// ToolRateLimit caps invocations of a single tool per job within
	// ToolRateWindow.
	ToolRateLimit  int           `yaml:"tool_rate_limit"`
	ToolRateWindow time.Duration `yaml:"tool_rate_window"`
	// RateLimitBackoff converts rate-limit denials into cooldowns so
	// callers get a retry-after instead of a hard stop.
	RateLimitBackoff bool `yaml:"rate_limit_backoff"`

	// CooldownPolicy is "fixed" or "exponential".
	CooldownPolicy string        `yaml:"cooldown_policy"`
	CooldownBase   time.Duration `yaml:"cooldown_base"`
	CooldownMax    time.Duration `yaml:"cooldown_max"`

	// AutoWrap controls whether SDK Wrap installs the guard. Disabled,
	// Wrap returns tool functions unchanged.
	AutoWrap bool `yaml:"auto_wrap"`

	// WatchdogIdle is how long a job may go without activity before the
	// watchdog alerts. WatchdogRealert is the suppression window before an
	// ongoing stall is alerted again.
	WatchdogIdle    time.Duration `yaml:"watchdog_idle"`
	WatchdogRealert time.Duration `yaml:"watchdog_realert"`

	// FailOpenAfter allows actions through after this many consecutive
	// storage failures. 0 means always fail closed.
	FailOpenAfter int `yaml:"fail_open_after"`
}

// configYAML is the on-disk shape: durations are Go duration strings
// ("90s", "15m"), and pointer fields distinguish absent keys from zero
// values so partial configs keep their defaults.
type configYAML struct {
	LedgerPath       *string `yaml:"ledger_path,omitempty"`
	MaxSteps         *int    `yaml:"max_steps,omitempty"`
	MaxDuration      *string `yaml:"max_duration,omitempty"`
	DupWindow        *int    `yaml:"dup_window,omitempty"`
	DupThreshold     *int    `yaml:"dup_threshold,omitempty"`
	ToolRateLimit    *int    `yaml:"tool_rate_limit,omitempty"`
	ToolRateWindow   *string `yaml:"tool_rate_window,omitempty"`
	RateLimitBackoff *bool   `yaml:"rate_limit_backoff,omitempty"`
	CooldownPolicy   *string `yaml:"cooldown_policy,omitempty"`
	CooldownBase     *string `yaml:"cooldown_base,omitempty"`
	CooldownMax      *string `yaml:"cooldown_max,omitempty"`
	AutoWrap         *bool   `yaml:"auto_wrap,omitempty"`
	WatchdogIdle     *string `yaml:"watchdog_idle,omitempty"`
	WatchdogRealert  *string `yaml:"watchdog_realert,omitempty"`
	FailOpenAfter    *int    `yaml:"fail_open_after,omitempty"`
}

// UnmarshalYAML overwrites only the fields the document specifies.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw configYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}

	setDuration := func(field string, src *string, dst *time.Duration) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return &ConfigError{Field: field, Msg: fmt.Sprintf("invalid duration %q", *src)}
		}
		*dst = d
		return nil
	}

	if raw.LedgerPath != nil {
		c.LedgerPath = *raw.LedgerPath
	}
	if raw.MaxSteps != nil {
		c.MaxSteps = *raw.MaxSteps
	}
	if raw.DupWindow != nil {
		c.DupWindow = *raw.DupWindow
	}
	if raw.DupThreshold != nil {
		c.DupThreshold = *raw.DupThreshold
	}
	if raw.ToolRateLimit != nil {
		c.ToolRateLimit = *raw.ToolRateLimit
	}
	if raw.RateLimitBackoff != nil {
		c.RateLimitBackoff = *raw.RateLimitBackoff
	}
	if raw.CooldownPolicy != nil {
		c.CooldownPolicy = *raw.CooldownPolicy
	}
	if raw.AutoWrap != nil {
		c.AutoWrap = *raw.AutoWrap
	}
	if raw.FailOpenAfter != nil {
		c.FailOpenAfter = *raw.FailOpenAfter
	}

	for _, d := range []struct {
		field string
		src   *string
		dst   *time.Duration
	}{
		{"max_duration", raw.MaxDuration, &c.MaxDuration},
		{"tool_rate_window", raw.ToolRateWindow, &c.ToolRateWindow},
		{"cooldown_base", raw.CooldownBase, &c.CooldownBase},
		{"cooldown_max", raw.CooldownMax, &c.CooldownMax},
		{"watchdog_idle", raw.WatchdogIdle, &c.WatchdogIdle},
		{"watchdog_realert", raw.WatchdogRealert, &c.WatchdogRealert},
	} {
		if err := setDuration(d.field, d.src, d.dst); err != nil {
			return err
		}
	}
	return nil
}

// MarshalYAML renders durations as strings rather than nanosecond counts.
func (c Config) MarshalYAML() (any, error) {
	s := func(v string) *string { return &v }
	i := func(v int) *int { return &v }
	b := func(v bool) *bool { return &v }
	return configYAML{
		LedgerPath:       s(c.LedgerPath),
		MaxSteps:         i(c.MaxSteps),
		MaxDuration:      s(c.MaxDuration.String()),
		DupWindow:        i(c.DupWindow),
		DupThreshold:     i(c.DupThreshold),
		ToolRateLimit:    i(c.ToolRateLimit),
		ToolRateWindow:   s(c.ToolRateWindow.String()),
		RateLimitBackoff: b(c.RateLimitBackoff),
		CooldownPolicy:   s(c.CooldownPolicy),
		CooldownBase:     s(c.CooldownBase.String()),
		CooldownMax:      s(c.CooldownMax.String()),
		AutoWrap:         b(c.AutoWrap),
		WatchdogIdle:     s(c.WatchdogIdle.String()),
		WatchdogRealert:  s(c.WatchdogRealert.String()),
		FailOpenAfter:    i(c.FailOpenAfter),
	}, nil
}

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		LedgerPath:       DefaultLedgerPath(),
		MaxSteps:         40,
		MaxDuration:      15 * time.Minute,
		DupWindow:        6,
		DupThreshold:     3,
		ToolRateLimit:    8,
		ToolRateWindow:   60 * time.Second,
		RateLimitBackoff: false,
		CooldownPolicy:   CooldownFixed,
		CooldownBase:     60 * time.Second,
		CooldownMax:      15 * time.Minute,
		AutoWrap:         true,
		WatchdogIdle:     3 * time.Minute,
		WatchdogRealert:  15 * time.Minute,
		FailOpenAfter:    0,
	}
}

// DefaultDir returns the default configuration directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "loopguard")
	}
	return filepath.Join(home, ".loopguard")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultLedgerPath returns the default ledger database location.
func DefaultLedgerPath() string {
	return filepath.Join(DefaultDir(), "ledger.db")
}

// Load reads configuration from a YAML file. Empty path falls back to
// DefaultPath. A missing file returns defaults; invalid YAML or invalid
// values return an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Defaults first, YAML overwrites only specified fields.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks threshold sanity. Called by Load; callers constructing a
// Config by hand should call it too.
func (c *Config) Validate() error {
	if c.LedgerPath == "" {
		return &ConfigError{Field: "ledger_path", Msg: "must not be empty"}
	}
	if c.MaxSteps < 1 {
		return &ConfigError{Field: "max_steps", Msg: "must be at least 1"}
	}
	if c.MaxDuration <= 0 {
		return &ConfigError{Field: "max_duration", Msg: "must be positive"}
	}
	if c.DupWindow < 1 {
		return &ConfigError{Field: "dup_window", Msg: "must be at least 1"}
	}
	if c.DupThreshold < 2 {
		return &ConfigError{Field: "dup_threshold", Msg: "must be at least 2"}
	}
	if c.ToolRateLimit < 1 {
		return &ConfigError{Field: "tool_rate_limit", Msg: "must be at least 1"}
	}
	if c.ToolRateWindow <= 0 {
		return &ConfigError{Field: "tool_rate_window", Msg: "must be positive"}
	}
	switch c.CooldownPolicy {
	case CooldownFixed, CooldownExponential:
	default:
		return &ConfigError{Field: "cooldown_policy", Msg: fmt.Sprintf("unknown policy %q: use %q or %q", c.CooldownPolicy, CooldownFixed, CooldownExponential)}
	}
	if c.CooldownBase <= 0 {
		return &ConfigError{Field: "cooldown_base", Msg: "must be positive"}
	}
	if c.CooldownMax < c.CooldownBase {
		return &ConfigError{Field: "cooldown_max", Msg: "must be at least cooldown_base"}
	}
	if c.WatchdogIdle <= 0 {
		return &ConfigError{Field: "watchdog_idle", Msg: "must be positive"}
	}
	if c.WatchdogRealert <= 0 {
		return &ConfigError{Field: "watchdog_realert", Msg: "must be positive"}
	}
	if c.FailOpenAfter < 0 {
		return &ConfigError{Field: "fail_open_after", Msg: "must not be negative"}
	}
	return nil
}

// DefaultConfigYAML renders the default configuration as a commented YAML
// template for `loopguard init`.
func DefaultConfigYAML() string {
	cfg := DefaultConfig()
	data, _ := yaml.Marshal(cfg)
	header := "# loopguard configuration — admission limits for agent jobs.\n" +
		"# Values below are the defaults; edit and restart (or rely on\n" +
		"# hot-reload where the embedding process enables it).\n\n"
	return header + string(data)
}
