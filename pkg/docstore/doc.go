// Package docstore provides key-addressed document collections that sessions
// are persisted in.
//
// A Store supports point lookup by id, upsert-by-id with a partial update
// spec (journal.Spec) and delete by id. Three drivers are provided:
//
//   - Memory: process-local map, evaluates updates with journal.Apply
//   - SQLite: one row per document, updates evaluated with journal.Apply inside
//     an immediate transaction
//   - Mongo: a MongoDB collection, update specs are sent as-is to UpdateOne
//
// Invariants:
//   - FindOne returns ErrNotFound when the id is absent
//   - Upsert applies every operator of a spec or none
//   - Returned documents never contain the storage key (_id)
//
// Usage:
//
//	store, err := docstore.Open(ctx, cfg.Store)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	err = store.Upsert(ctx, id, journal.Spec{"$inc": {"views": 1}})
package docstore
