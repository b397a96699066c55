// Package journal accumulates pending partial updates for a document and
// evaluates MongoDB-style update specs.
//
// Invariants:
// - At most one entry exists per path per operator.
// - Entries of different operators never touch overlapping paths; a write that
//   would overlap collapses the affected subtree into a single $set or $unset.
// - Multi-value operators ($push, $pullAll, $addToSet) extend their value list;
//   $inc deltas are summed; other operators keep the last payload.
// - Apply is atomic: either every operator in a spec is applied or none is.
//
// Usage:
//
//	j := journal.New()
//	j.Set("name", "koa")
//	doc, _ := journal.Apply(document.Map{}, j.Spec())
//	_ = doc
package journal
