package form

import (
	"fmt"
	"strings"
)

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return nil
		}
	}
	return segs
}

func lookup(m map[string]any, segs []string) (any, bool) {
	var cur any = m
	for _, seg := range segs {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// assign writes value at segs, creating intermediate objects. A scalar in
// the way of a nested write is an error rather than being silently replaced.
func assign(m map[string]any, segs []string, value any) error {
	cur := m
	for i, seg := range segs[:len(segs)-1] {
		next, exists := cur[seg]
		if !exists || next == nil {
			child := map[string]any{}
			cur[seg] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("path %q: %q is not an object", strings.Join(segs, "."), strings.Join(segs[:i+1], "."))
		}
		cur = child
	}
	cur[segs[len(segs)-1]] = cloneValue(value)
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// HasValue reports whether v counts as answered: non-nil, non-blank
// strings, non-empty objects and lists. false and 0 are answers.
func HasValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case map[string]any:
		for _, inner := range t {
			if HasValue(inner) {
				return true
			}
		}
		return false
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

// mergeMissing copies keys from src that are unset in dst, recursing into
// objects so a partially typed address still receives the loaded remainder.
func mergeMissing(dst, src map[string]any) {
	for k, sv := range src {
		dv, exists := dst[k]
		if !exists || !HasValue(dv) {
			if dm, ok := dv.(map[string]any); ok && exists {
				if sm, ok := sv.(map[string]any); ok {
					mergeMissing(dm, sm)
					continue
				}
			}
			dst[k] = cloneValue(sv)
			continue
		}
		dm, dok := dv.(map[string]any)
		sm, sok := sv.(map[string]any)
		if dok && sok {
			mergeMissing(dm, sm)
		}
	}
}
