package document

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Map is a nested field mapping. Nested mappings are stored as map[string]any.
type Map map[string]any

// SplitPath splits a dotted field path into its segments
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

// Overlaps reports whether one path equals or is an ancestor of the other
func Overlaps(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}

// IsAncestor reports whether ancestor is a strict prefix path of path
func IsAncestor(ancestor, path string) bool {
	return strings.HasPrefix(path, ancestor+".")
}

// Lookup returns the value at path
func (m Map) Lookup(path string) (any, bool) {
	segments, err := SplitPath(path)
	if err != nil {
		return nil, false
	}

	var cur any = map[string]any(m)
	for _, seg := range segments {
		obj, ok := asObject(cur)
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

// Assign sets the value at path, creating intermediate maps as needed.
// It fails with ErrTypeMismatch if an intermediate value exists and is not a map.
func (m Map) Assign(path string, value any) error {
	parent, leaf, err := m.parent(path, true)
	if err != nil {
		return err
	}
	parent[leaf] = value
	return nil
}

// Delete removes the value at path. Missing paths, including paths running
// through a non-map value, are not an error.
func (m Map) Delete(path string) (bool, error) {
	parent, leaf, err := m.parent(path, false)
	if errors.Is(err, ErrTypeMismatch) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if parent == nil {
		return false, nil
	}
	if _, ok := parent[leaf]; !ok {
		return false, nil
	}
	delete(parent, leaf)
	return true, nil
}

// CheckTraversable verifies that every existing ancestor of path is a map
func (m Map) CheckTraversable(path string) error {
	_, _, err := m.parent(path, false)
	return err
}

// parent walks to the map holding the last segment of path.
// With create=false a missing intermediate yields a nil parent and no error.
func (m Map) parent(path string, create bool) (map[string]any, string, error) {
	segments, err := SplitPath(path)
	if err != nil {
		return nil, "", err
	}

	cur := map[string]any(m)
	for i, seg := range segments[:len(segments)-1] {
		next, ok := cur[seg]
		if !ok || next == nil {
			if !create {
				return nil, "", nil
			}
			child := map[string]any{}
			cur[seg] = child
			cur = child
			continue
		}
		obj, ok := asObject(next)
		if !ok {
			return nil, "", fmt.Errorf("%w: %s is %s, not a map", ErrTypeMismatch, strings.Join(segments[:i+1], "."), KindOf(next))
		}
		cur = obj
	}
	return cur, segments[len(segments)-1], nil
}

// Keys returns the top-level keys in sorted order
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the map
func (m Map) Clone() Map {
	if m == nil {
		return Map{}
	}
	return Map(cloneObject(m))
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Map:
		return t, true
	default:
		return nil, false
	}
}

// AsSequence returns v as a sequence
func AsSequence(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// Clone returns a deep copy of a normalized value
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneObject(t)
	case Map:
		return cloneObject(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Clone(item)
		}
		return out
	default:
		return v
	}
}

func cloneObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// KindOf names the shape of a value for error messages
func KindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case int64, float64:
		return "number"
	case []any:
		return "sequence"
	case map[string]any, Map:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}
