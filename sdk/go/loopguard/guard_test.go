package loopguard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWrapExecutesAllowedCalls(t *testing.T) {
	c := testClient(t, WithJob("job-w1"))

	called := false
	wrapped := c.Wrap(func(ctx context.Context, a Action) (any, error) {
		called = true
		return "done", nil
	})

	result, err := wrapped(context.Background(), Action{Tool: "fetch", Args: map[string]any{"url": "https://a"}})
	if err != nil {
		t.Fatalf("wrapped: %v", err)
	}
	if !called || result != "done" {
		t.Errorf("called=%v result=%v", called, result)
	}
}

func TestWrapBlocksDuplicateLoop(t *testing.T) {
	c := testClient(t, WithJob("job-dup"))

	wrapped := c.Wrap(func(ctx context.Context, a Action) (any, error) { return nil, nil })
	action := Action{Tool: "shell", Args: map[string]any{"cmd": "make build"}}

	// Third identical attempt within the window trips the threshold.
	for i := 0; i < 2; i++ {
		if _, err := wrapped(context.Background(), action); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	_, err := wrapped(context.Background(), action)
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *RejectedError", err)
	}
	if rej.Reason != ReasonDuplicateLoop || rej.Decision != Cooldown {
		t.Errorf("rejection = %+v", rej)
	}
	if rej.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", rej.RetryAfter)
	}
}

func TestWrapEquivalentArgsShareSignature(t *testing.T) {
	c := testClient(t, WithJob("job-eq"))
	wrapped := c.Wrap(func(ctx context.Context, a Action) (any, error) { return nil, nil })

	// Key order and string whitespace must not defeat duplicate detection.
	variants := []Action{
		{Tool: "fetch", Args: map[string]any{"url": "https://x", "depth": 2}},
		{Tool: "fetch", Args: map[string]any{"depth": 2, "url": "https://x"}},
		{Tool: "fetch", Args: map[string]any{"url": "  https://x  ", "depth": 2}},
	}
	for i, a := range variants[:2] {
		if _, err := wrapped(context.Background(), a); err != nil {
			t.Fatalf("variant %d: %v", i, err)
		}
	}
	_, err := wrapped(context.Background(), variants[2])
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.Reason != ReasonDuplicateLoop {
		t.Fatalf("equivalent variants not treated as duplicates: err = %v", err)
	}
}

func TestWrapToolErrorPropagatesUnchanged(t *testing.T) {
	c := testClient(t, WithJob("job-err"))

	boom := errors.New("upstream exploded")
	wrapped := c.Wrap(func(ctx context.Context, a Action) (any, error) { return nil, boom })

	_, err := wrapped(context.Background(), Action{Tool: "fetch"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped tool's own error", err)
	}
}

func TestWrapDisabledByAutoWrap(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, "auto_wrap: false\n")

	c, err := New(
		WithConfigFile(cfgPath),
		WithLedgerPath(filepath.Join(dir, "ledger.db")),
		WithJob("job-raw"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	calls := 0
	fn := func(ctx context.Context, a Action) (any, error) { calls++; return nil, nil }
	wrapped := c.Wrap(fn)

	// Unguarded: identical calls far past any threshold all execute.
	action := Action{Tool: "shell", Args: map[string]any{"cmd": "x"}}
	for i := 0; i < 10; i++ {
		if _, err := wrapped(context.Background(), action); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
}

func TestWrapRequiresJob(t *testing.T) {
	c := testClient(t) // no WithJob
	wrapped := c.Wrap(func(ctx context.Context, a Action) (any, error) { return nil, nil })

	if _, err := wrapped(context.Background(), Action{Tool: "fetch"}); err == nil {
		t.Fatal("wrapped call without a job succeeded")
	}
}

func TestWrapForJobIsolatesJobs(t *testing.T) {
	c := testClient(t, WithJob("job-a"))
	fn := func(ctx context.Context, a Action) (any, error) { return nil, nil }

	wrapA := c.Wrap(fn)
	wrapB := c.Wrap(fn, WrapForJob("job-b"))
	action := Action{Tool: "shell", Args: map[string]any{"cmd": "same"}}

	// Trip job-a's duplicate threshold.
	wrapA(context.Background(), action)
	wrapA(context.Background(), action)
	if _, err := wrapA(context.Background(), action); err == nil {
		t.Fatal("job-a not blocked")
	}
	// job-b's history is independent.
	if _, err := wrapB(context.Background(), action); err != nil {
		t.Fatalf("job-b blocked by job-a's history: %v", err)
	}
}

func TestWrapTools(t *testing.T) {
	c := testClient(t, WithJob("job-table"))

	tools := map[string]ToolFunc{}
	for _, name := range []string{"fetch", "shell"} {
		n := name
		tools[n] = func(ctx context.Context, a Action) (any, error) { return n, nil }
	}

	wrapped := c.WrapTools(tools)
	if len(wrapped) != 2 {
		t.Fatalf("wrapped = %d tools, want 2", len(wrapped))
	}
	got, err := wrapped["shell"](context.Background(), Action{Tool: "shell"})
	if err != nil || got != "shell" {
		t.Errorf("shell = %v, %v", got, err)
	}
}

func TestWrapMaxSteps(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, "max_steps: 3\ndup_threshold: 100\ndup_window: 1\ntool_rate_limit: 100\n")

	c, err := New(
		WithConfigFile(cfgPath),
		WithLedgerPath(filepath.Join(dir, "ledger.db")),
		WithJob("job-steps"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	wrapped := c.Wrap(func(ctx context.Context, a Action) (any, error) { return nil, nil })
	for i := 0; i < 3; i++ {
		a := Action{Tool: "fetch", Args: map[string]any{"i": i}}
		if _, err := wrapped(context.Background(), a); err != nil {
			t.Fatalf("step %d: %v", i+1, err)
		}
	}

	_, err = wrapped(context.Background(), Action{Tool: "fetch", Args: map[string]any{"i": 99}})
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.Reason != ReasonMaxSteps {
		t.Fatalf("err = %v, want max-steps rejection", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
