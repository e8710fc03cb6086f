package cli

import (
	"os"
	"strings"
	"testing"

	"github.com/loopguard/loopguard/internal/config"
)

func TestInitWritesDefaultConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	flagConfig = ""
	initForce = false

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	data, err := os.ReadFile(config.DefaultPath())
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(string(data), "max_steps:") {
		t.Errorf("config template missing max_steps: %q", data)
	}

	// The written template must load cleanly.
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.MaxSteps != 40 {
		t.Errorf("max_steps = %d, want default 40", cfg.MaxSteps)
	}
}

func TestInitPreservesExistingConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	flagConfig = ""
	initForce = false

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("first runInit: %v", err)
	}
	custom := "max_steps: 7\n"
	if err := os.WriteFile(config.DefaultPath(), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("second runInit: %v", err)
	}
	data, _ := os.ReadFile(config.DefaultPath())
	if string(data) != custom {
		t.Error("init overwrote an existing config without --force")
	}

	initForce = true
	defer func() { initForce = false }()
	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("forced runInit: %v", err)
	}
	data, _ = os.ReadFile(config.DefaultPath())
	if string(data) == custom {
		t.Error("--force did not overwrite the config")
	}
}
