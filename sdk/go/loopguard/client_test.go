package loopguard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithLedgerPath(filepath.Join(t.TempDir(), "ledger.db")),
		WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")),
	}, opts...)
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewDefaultsWhenConfigMissing(t *testing.T) {
	c := testClient(t)
	if got := c.runner.Config().MaxSteps; got != 40 {
		t.Errorf("MaxSteps = %d, want default 40", got)
	}
}

func TestNewLoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("max_steps: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := testClient(t, WithConfigFile(path))
	if got := c.runner.Config().MaxSteps; got != 5 {
		t.Errorf("MaxSteps = %d, want 5", got)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("dup_threshold: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(WithConfigFile(path))
	if err == nil {
		t.Fatal("New accepted dup_threshold below 2")
	}
}

func TestCheckDoesNotRecord(t *testing.T) {
	c := testClient(t)
	action := Action{Tool: "fetch", Args: map[string]any{"url": "https://example.com"}}

	for i := 0; i < 10; i++ {
		res, err := c.Check("job-check", action)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if !res.Allowed() {
			t.Fatalf("iteration %d: dry-run check tripped a limit: %+v", i, res)
		}
	}
}

func TestMarkCompletedRejectsFurtherActions(t *testing.T) {
	c := testClient(t, WithJob("job-done"))
	wrapped := c.Wrap(func(ctx context.Context, a Action) (any, error) { return "ok", nil })

	if _, err := wrapped(context.Background(), Action{Tool: "fetch"}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := c.MarkCompleted("job-done"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	_, err := wrapped(context.Background(), Action{Tool: "fetch"})
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *RejectedError", err)
	}
	if rej.Reason != ReasonJobTerminal {
		t.Errorf("reason = %q, want %q", rej.Reason, ReasonJobTerminal)
	}
}
