// Package signature computes deterministic action signatures for duplicate
// detection. Two invocations with the same effective intent must hash to the
// same bytes regardless of incidental formatting, map ordering, or which
// process produced them.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
)

// envelope is the canonical shape hashed for a signature. Field names are
// part of the wire contract; changing them invalidates existing ledgers.
type envelope struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Compute returns the signature of a tool invocation as "sha256:<hex>".
// Arguments are serialized to RFC 8785 canonical JSON before hashing, so
// key order and number formatting never change the result. String values
// are trimmed of surrounding whitespace first.
func Compute(tool string, args map[string]any) (string, error) {
	if tool == "" {
		return "", fmt.Errorf("signature: tool name must not be empty")
	}

	raw, err := json.Marshal(envelope{Tool: tool, Args: normalize(args)})
	if err != nil {
		return "", fmt.Errorf("signature: marshal action: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("signature: canonicalize action: %w", err)
	}

	return Hash(canonical), nil
}

// Hash returns "sha256:<hex>" of the given bytes.
func Hash(b []byte) string {
	h := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(h[:])
}

// normalize trims string values recursively. Maps and slices are rebuilt so
// the caller's arguments are never mutated.
func normalize(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return normalize(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
