// Package wire adapts raw engine responses to the client's JSON conventions.
//
// The engine has emitted both snake_case and camelCase keys across versions,
// and there is no negotiated protocol version to branch on. SafeParse absorbs
// the difference by rewriting every `_x` key fragment to `X` before decoding.
// It never returns an error: malformed engine output degrades to a
// caller-supplied fallback so a bad payload can never crash a render path.
//
// The rewrite is a compatibility shim, not a permanent feature. It can be
// retired once the engine gains a protocol version field.
package wire

import (
	"encoding/json"
	"strings"
)

// SafeParse parses raw JSON into T, normalizing snake_case object keys to
// camelCase at every nesting level. Returns fallback if raw is empty, fails
// to parse, or cannot be decoded into T.
//
// Normalization is skipped entirely when no top-level key (or, for arrays,
// no key of the first element) contains an underscore. Already-normalized
// payloads pay only that probe.
func SafeParse[T any](raw string, fallback T) T {
	if raw == "" {
		return fallback
	}

	var tree any
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		return fallback
	}
	if tree == nil {
		return fallback
	}

	if needsNormalization(tree) {
		tree = normalizeKeys(tree)
	}

	buf, err := json.Marshal(tree)
	if err != nil {
		return fallback
	}

	var out T
	if err := json.Unmarshal(buf, &out); err != nil {
		return fallback
	}
	return out
}

// Normalize rewrites snake_case keys to camelCase through nested objects and
// arrays. Exposed for callers that already hold a decoded tree.
func Normalize(tree any) any {
	if !needsNormalization(tree) {
		return tree
	}
	return normalizeKeys(tree)
}

// needsNormalization probes only the top level: an object is checked for any
// key containing an underscore; an array is probed via its first element.
// Deeply mixed payloads do not occur on this boundary, so one level is enough
// to decide.
func needsNormalization(tree any) bool {
	switch v := tree.(type) {
	case map[string]any:
		for k := range v {
			if strings.Contains(k, "_") {
				return true
			}
		}
		return false
	case []any:
		if len(v) == 0 {
			return false
		}
		return needsNormalization(v[0])
	default:
		return false
	}
}

func normalizeKeys(tree any) any {
	switch v := tree.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[camelKey(k)] = normalizeKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = normalizeKeys(val)
		}
		return out
	default:
		return tree
	}
}

// camelKey rewrites every `_<lowercase letter>` pair by dropping the
// underscore and uppercasing the letter. Other underscores are preserved
// verbatim so identifiers like "custom_1234" survive untouched.
func camelKey(k string) string {
	if !strings.Contains(k, "_") {
		return k
	}
	var b strings.Builder
	b.Grow(len(k))
	for i := 0; i < len(k); i++ {
		if k[i] == '_' && i+1 < len(k) && k[i+1] >= 'a' && k[i+1] <= 'z' {
			b.WriteByte(k[i+1] - 'a' + 'A')
			i++
			continue
		}
		b.WriteByte(k[i])
	}
	return b.String()
}
