package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/harun/docsess/internal/observability"
	"github.com/harun/docsess/pkg/docstore"
	"github.com/harun/docsess/pkg/document"
	"github.com/harun/docsess/pkg/journal"
)

// reservedKeys never live in a session's fields
var reservedKeys = map[string]bool{
	"_id":   true,
	"id":    true,
	"isNew": true,

	docstore.UpdatedAtField: true,
}

// Session is the in-memory mirror of one stored document.
// Its state is guarded by a mutex, but callers are expected to issue
// mutators in sequence within one request.
type Session struct {
	mu      sync.Mutex
	id      string
	fields  document.Map
	isNew   bool
	journal *journal.Journal
	saving  bool
	commit  *Commit
	store   docstore.Store
}

func newSession(store docstore.Store, id string, fields document.Map, isNew bool) *Session {
	if fields == nil {
		fields = document.Map{}
	}
	return &Session{
		id:      id,
		fields:  withoutReserved(fields),
		isNew:   isNew,
		journal: journal.New(),
		store:   store,
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// IsNew reports whether the session has never been loaded from or saved to the store
func (s *Session) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isNew
}

// IsDirty reports whether the session has unsaved mutations
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.journal.IsEmpty()
}

// IsSaving reports whether a save is in flight
func (s *Session) IsSaving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

// Get returns a copy of the value at path
func (s *Session) Get(path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.fields.Lookup(path)
	if !ok {
		return nil, false
	}
	return document.Clone(v), true
}

// Serialize returns a deep copy of the session's fields, without id or journal
func (s *Session) Serialize() document.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields.Clone()
}

// Pending returns the update spec the next save would send
func (s *Session) Pending() journal.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.journal.Spec()
}

// MarshalJSON encodes the serialized fields
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(s.Serialize()))
}

// Set assigns v at path
func (s *Session) Set(path string, v any) error {
	value, err := normalizeArg(journal.OpSet, v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(journal.OpSet, path, value, func(j *journal.Journal, mirror document.Map) {
		j.Set(path, value, mirror)
	})
}

// Unset removes the value at path
func (s *Session) Unset(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(journal.OpUnset, path, "", func(j *journal.Journal, mirror document.Map) {
		j.Unset(path, mirror)
	})
}

// Inc adds n to the number at path; a missing value counts as 0
func (s *Session) Inc(path string, n any) error {
	delta, err := normalizeArg(journal.OpInc, n)
	if err != nil {
		return err
	}
	if !document.IsNumber(delta) {
		observability.RecordMutation(string(journal.OpInc), false)
		return fmt.Errorf("%w: increment must be a number, got %s", ErrTypeMismatch, document.KindOf(delta))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(journal.OpInc, path, delta, func(j *journal.Journal, mirror document.Map) {
		j.Inc(path, delta, mirror)
	})
}

// Rename moves the value at oldPath to newPath
func (s *Session) Rename(oldPath, newPath string) error {
	if err := checkPath(newPath); err != nil {
		observability.RecordMutation(string(journal.OpRename), false)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(journal.OpRename, oldPath, newPath, func(j *journal.Journal, mirror document.Map) {
		j.Rename(oldPath, newPath, mirror)
	})
}

// Push appends v to the sequence at path
func (s *Session) Push(path string, v any) error {
	return s.PushAll(path, []any{v})
}

// PushAll appends values in order to the sequence at path, creating it if absent
func (s *Session) PushAll(path string, values []any) error {
	list, err := normalizeList(journal.OpPush, values)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(journal.OpPush, path, each(list), func(j *journal.Journal, mirror document.Map) {
		j.Push(path, list, mirror)
	})
}

// Pull removes every element deep-equal to v from the sequence at path
func (s *Session) Pull(path string, v any) error {
	return s.PullAll(path, []any{v})
}

// PullAll removes every element deep-equal to any of values from the sequence at path
func (s *Session) PullAll(path string, values []any) error {
	list, err := normalizeList(journal.OpPullAll, values)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(journal.OpPullAll, path, list, func(j *journal.Journal, mirror document.Map) {
		j.PullAll(path, list, mirror)
	})
}

// Pop removes the last element of the sequence at path
func (s *Session) Pop(path string) error {
	return s.pop(path, 1)
}

// Shift removes the first element of the sequence at path
func (s *Session) Shift(path string) error {
	return s.pop(path, -1)
}

func (s *Session) pop(path string, direction int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(journal.OpPop, path, direction, func(j *journal.Journal, mirror document.Map) {
		j.Pop(path, direction, mirror)
	})
}

// AddToSet appends each value not already present (by deep equality) to the
// sequence at path, preserving first-seen order. Every value is still sent to
// the store, which deduplicates on its side.
func (s *Session) AddToSet(path string, values ...any) error {
	list, err := normalizeList(journal.OpAddToSet, values)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(journal.OpAddToSet, path, each(list), func(j *journal.Journal, mirror document.Map) {
		j.AddToSet(path, list, mirror)
	})
}

// apply evaluates one operator against the mirror and, on success, swaps in
// the result and lets record add the journal entry. s.mu must be held.
func (s *Session) apply(op journal.Op, path string, payload any, record func(*journal.Journal, document.Map)) error {
	if err := checkPath(path); err != nil {
		observability.RecordMutation(string(op), false)
		return err
	}

	next, err := journal.Apply(s.fields, journal.Spec{string(op): {path: payload}})
	if err != nil {
		observability.RecordMutation(string(op), false)
		return err
	}

	s.fields = next
	record(s.journal, next)
	observability.RecordMutation(string(op), true)
	return nil
}

// checkPath rejects malformed paths and paths into reserved keys
func checkPath(path string) error {
	segments, err := document.SplitPath(path)
	if err != nil {
		return err
	}
	if reservedKeys[segments[0]] {
		return fmt.Errorf("%w: %q", ErrReservedField, segments[0])
	}
	for _, seg := range segments {
		if strings.HasPrefix(seg, "$") {
			return fmt.Errorf("%w: %q", ErrReservedField, seg)
		}
	}
	return nil
}

func isReservedKey(key string) bool {
	return reservedKeys[key] || strings.HasPrefix(key, "$")
}

func withoutReserved(fields document.Map) document.Map {
	for key := range fields {
		if isReservedKey(key) {
			delete(fields, key)
		}
	}
	return fields
}

func normalizeArg(op journal.Op, v any) (any, error) {
	value, err := document.Normalize(v)
	if err != nil {
		observability.RecordMutation(string(op), false)
		return nil, err
	}
	return value, nil
}

func normalizeList(op journal.Op, values []any) ([]any, error) {
	list := make([]any, len(values))
	for i, v := range values {
		value, err := normalizeArg(op, v)
		if err != nil {
			return nil, err
		}
		list[i] = value
	}
	return list, nil
}

func each(values []any) map[string]any {
	return map[string]any{journal.EachKey: values}
}
