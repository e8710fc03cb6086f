package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxSteps != 40 || cfg.DupWindow != 6 || cfg.DupThreshold != 3 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.ToolRateLimit != 8 || cfg.ToolRateWindow != 60*time.Second {
		t.Errorf("unexpected rate limit defaults: %+v", cfg)
	}
	if !cfg.AutoWrap {
		t.Error("auto_wrap should default to true")
	}
	if cfg.FailOpenAfter != 0 {
		t.Error("fail_open_after should default to 0 (fail closed)")
	}
}

func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "max_steps: 10\ndup_threshold: 4\nwatchdog_idle: 2m\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxSteps != 10 {
		t.Errorf("max_steps = %d, want 10", cfg.MaxSteps)
	}
	if cfg.DupThreshold != 4 {
		t.Errorf("dup_threshold = %d, want 4", cfg.DupThreshold)
	}
	if cfg.WatchdogIdle != 2*time.Minute {
		t.Errorf("watchdog_idle = %s, want 2m", cfg.WatchdogIdle)
	}
	// Unspecified fields keep defaults.
	if cfg.DupWindow != 6 {
		t.Errorf("dup_window = %d, want default 6", cfg.DupWindow)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_steps: [not an int\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero max_steps", func(c *Config) { c.MaxSteps = 0 }, "max_steps"},
		{"negative dup_window", func(c *Config) { c.DupWindow = -1 }, "dup_window"},
		{"threshold below 2", func(c *Config) { c.DupThreshold = 1 }, "dup_threshold"},
		{"zero rate window", func(c *Config) { c.ToolRateWindow = 0 }, "tool_rate_window"},
		{"unknown cooldown policy", func(c *Config) { c.CooldownPolicy = "random" }, "cooldown_policy"},
		{"cooldown max below base", func(c *Config) { c.CooldownMax = c.CooldownBase / 2 }, "cooldown_max"},
		{"negative fail_open_after", func(c *Config) { c.FailOpenAfter = -1 }, "fail_open_after"},
		{"empty ledger path", func(c *Config) { c.LedgerPath = "" }, "ledger_path"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if ce.Field != tc.field {
				t.Errorf("error field = %q, want %q", ce.Field, tc.field)
			}
		})
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("defaults fail validation: %v", err)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_steps: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, path, func(cfg *Config) {
			got.Store(int64(cfg.MaxSteps))
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("max_steps: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for got.Load() != 7 {
		select {
		case <-deadline:
			t.Fatalf("reload not observed, got max_steps=%d", got.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
