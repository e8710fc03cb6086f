package signature

import (
	"strings"
	"testing"
)

func TestComputeDeterministic(t *testing.T) {
	a, err := Compute("fetch", map[string]any{"url": "https://example.com", "retries": 3})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute("fetch", map[string]any{"retries": 3, "url": "https://example.com"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a != b {
		t.Errorf("map ordering changed signature: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "sha256:") {
		t.Errorf("signature missing sha256 prefix: %s", a)
	}
}

func TestComputeWhitespaceNormalized(t *testing.T) {
	a, _ := Compute("shell", map[string]any{"cmd": "ls -la"})
	b, _ := Compute("shell", map[string]any{"cmd": "  ls -la  "})
	if a != b {
		t.Error("surrounding whitespace changed signature")
	}
}

func TestComputeDistinguishesIntent(t *testing.T) {
	a, _ := Compute("fetch", map[string]any{"url": "https://example.com/a"})
	b, _ := Compute("fetch", map[string]any{"url": "https://example.com/b"})
	if a == b {
		t.Error("different resources produced identical signatures")
	}

	c, _ := Compute("read", map[string]any{"path": "/tmp/x"})
	d, _ := Compute("write", map[string]any{"path": "/tmp/x"})
	if c == d {
		t.Error("different tools produced identical signatures")
	}
}

func TestComputeNilArgs(t *testing.T) {
	a, err := Compute("noop", nil)
	if err != nil {
		t.Fatalf("Compute with nil args: %v", err)
	}
	b, _ := Compute("noop", map[string]any{})
	if a != b {
		t.Error("nil args and empty args produced different signatures")
	}
}

func TestComputeNestedNormalization(t *testing.T) {
	a, _ := Compute("api", map[string]any{
		"body": map[string]any{"name": " alice ", "ids": []any{" x ", "y"}},
	})
	b, _ := Compute("api", map[string]any{
		"body": map[string]any{"ids": []any{"x", "y"}, "name": "alice"},
	})
	if a != b {
		t.Error("nested normalization not applied")
	}
}

func TestComputeEmptyTool(t *testing.T) {
	if _, err := Compute("", nil); err == nil {
		t.Error("expected error for empty tool name")
	}
}

func TestComputeDoesNotMutateArgs(t *testing.T) {
	args := map[string]any{"cmd": "  spaced  "}
	if _, err := Compute("shell", args); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if args["cmd"] != "  spaced  " {
		t.Error("Compute mutated caller arguments")
	}
}

func FuzzComputeDeterministic(f *testing.F) {
	f.Add("fetch", "url", "https://example.com")
	f.Add("shell", "cmd", "ls")
	f.Add("", "", "")
	f.Fuzz(func(t *testing.T, tool, key, val string) {
		a, errA := Compute(tool, map[string]any{key: val})
		b, errB := Compute(tool, map[string]any{key: val})
		if (errA == nil) != (errB == nil) {
			t.Fatalf("nondeterministic error: %v vs %v", errA, errB)
		}
		if a != b {
			t.Fatalf("nondeterministic signature: %s vs %s", a, b)
		}
	})
}
