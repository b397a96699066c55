// Package document models the JSON-like values held by a session document.
//
// Invariants:
// - Normalized values are one of nil, bool, string, int64, float64, []any or map[string]any.
// - Dotted paths address nested maps only; a path never traverses a sequence.
// - Equal compares maps by key set, sequences by position and numbers by value.
//
// Usage:
//
//	m := document.Map{}
//	_ = m.Assign("profile.name", "koa")
//	v, ok := m.Lookup("profile.name")
//	_, _ = v, ok
package document
