// Package session implements store-backed session documents mutated through
// incremental update operators.
//
// A Session mirrors one stored document in memory. Every mutator updates the
// mirror immediately and records the matching operator in the session's
// journal; Save sends the accumulated journal to the store as one upsert.
//
// Invariants:
// - A session's id never changes.
// - A session is dirty if and only if its journal is non-empty.
// - A failed mutator leaves both mirror and journal unchanged.
// - At most one save per session is in flight; a second one fails with ErrConflict.
// - A failed save keeps its journal entries for the next attempt.
//
// Usage:
//
//	mgr, _ := session.NewManager(store, session.ManagerConfig{})
//	s, _ := mgr.Get(ctx, id)
//	_ = s.Inc("views", 1)
//	_ = s.AddToSet("tags", "go")
//	if s.IsDirty() {
//		_ = s.Save(ctx)
//	}
package session
