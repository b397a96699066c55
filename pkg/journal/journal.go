package journal

import (
	"sort"
	"strings"

	"github.com/harun/docsess/pkg/document"
)

// Journal accumulates pending operations for one commit cycle.
// Payloads are deep copies; nothing recorded aliases the caller's values.
type Journal struct {
	entries map[Op]map[string]any
}

// New creates an empty journal
func New() *Journal {
	return &Journal{entries: make(map[Op]map[string]any)}
}

// Len returns the number of recorded entries
func (j *Journal) Len() int {
	n := 0
	for _, fields := range j.entries {
		n += len(fields)
	}
	return n
}

// IsEmpty reports whether the journal holds no entries
func (j *Journal) IsEmpty() bool {
	return j.Len() == 0
}

// Clear removes every entry
func (j *Journal) Clear() {
	j.entries = make(map[Op]map[string]any)
}

// Has reports whether an entry exists for op at path
func (j *Journal) Has(op Op, path string) bool {
	_, ok := j.entries[op][path]
	return ok
}

// Set records an assignment. mirror must already reflect the assignment.
func (j *Journal) Set(path string, value any, mirror document.Map) {
	j.record(OpSet, path, document.Clone(value), mirror)
}

// Unset records a removal. mirror must already reflect the removal.
func (j *Journal) Unset(path string, mirror document.Map) {
	j.record(OpUnset, path, "", mirror)
}

// Inc records an increment; repeated increments of a path are summed
func (j *Journal) Inc(path string, delta any, mirror document.Map) {
	j.record(OpInc, path, delta, mirror)
}

// Rename records a move from oldPath to newPath
func (j *Journal) Rename(oldPath, newPath string, mirror document.Map) {
	j.record(OpRename, oldPath, newPath, mirror)
}

// Push records values appended to a sequence
func (j *Journal) Push(path string, values []any, mirror document.Map) {
	j.record(OpPush, path, cloneList(values), mirror)
}

// AddToSet records values added to a sequence if absent
func (j *Journal) AddToSet(path string, values []any, mirror document.Map) {
	j.record(OpAddToSet, path, cloneList(values), mirror)
}

// PullAll records values removed from a sequence
func (j *Journal) PullAll(path string, values []any, mirror document.Map) {
	j.record(OpPullAll, path, cloneList(values), mirror)
}

// Pop records the removal of the last (direction 1) or first (direction -1) element
func (j *Journal) Pop(path string, direction int64, mirror document.Map) {
	j.record(OpPop, path, direction, mirror)
}

// Spec renders the journal as an update document
func (j *Journal) Spec() Spec {
	spec := make(Spec, len(j.entries))
	for op, fields := range j.entries {
		if len(fields) == 0 {
			continue
		}
		out := make(map[string]any, len(fields))
		for path, payload := range fields {
			switch op {
			case OpPush, OpAddToSet:
				out[path] = map[string]any{EachKey: cloneList(payload.([]any))}
			case OpPullAll:
				out[path] = cloneList(payload.([]any))
			default:
				out[path] = document.Clone(payload)
			}
		}
		spec[string(op)] = out
	}
	return spec
}

// Clone returns an independent copy of the journal
func (j *Journal) Clone() *Journal {
	cp := New()
	for op, fields := range j.entries {
		dst := make(map[string]any, len(fields))
		for path, payload := range fields {
			dst[path] = document.Clone(payload)
		}
		cp.entries[op] = dst
	}
	return cp
}

// Merge re-records every entry of newer on top of j, as if the operations
// in newer had been issued after those already in j.
func (j *Journal) Merge(newer *Journal, mirror document.Map) {
	for _, op := range applyOrder {
		fields := newer.entries[op]
		paths := make([]string, 0, len(fields))
		for path := range fields {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			j.record(op, path, document.Clone(fields[path]), mirror)
		}
	}
}

// record adds an entry, merging it with an entry of the same operator at the
// same path, or collapsing into $set/$unset when it overlaps other entries.
func (j *Journal) record(op Op, path string, payload any, mirror document.Map) {
	touched := []string{path}
	if op == OpRename {
		touched = append(touched, payload.(string))
	}

	var conflicts []entryRef
	mergeable := false
	for eop, fields := range j.entries {
		for epath, epayload := range fields {
			ref := entryRef{op: eop, path: epath, payload: epayload}
			if !ref.overlaps(touched) {
				continue
			}
			if eop == op && epath == path && mergesWith(op) {
				mergeable = true
				continue
			}
			conflicts = append(conflicts, ref)
		}
	}

	if len(conflicts) > 0 {
		j.collapse(touched, conflicts, mirror)
		return
	}

	fields := j.entries[op]
	if fields == nil {
		fields = make(map[string]any)
		j.entries[op] = fields
	}

	if !mergeable {
		fields[path] = payload
		return
	}

	switch op {
	case OpPush, OpAddToSet, OpPullAll:
		fields[path] = append(fields[path].([]any), payload.([]any)...)
	case OpInc:
		sum, err := document.Add(fields[path], payload)
		if err != nil {
			// Non-numeric deltas never reach the journal; keep the latest.
			sum = payload
		}
		fields[path] = sum
	default:
		fields[path] = payload
	}
}

// collapse removes every entry overlapping the touched paths (following
// rename endpoints transitively) and replaces the affected subtrees with the
// mirror's current values.
func (j *Journal) collapse(touched []string, conflicts []entryRef, mirror document.Map) {
	roots := append([]string(nil), touched...)
	for _, c := range conflicts {
		roots = append(roots, c.paths()...)
	}

	for {
		roots = j.absorb(roots)
		if !widen(roots, mirror) {
			break
		}
	}

	for _, root := range roots {
		if value, ok := mirror.Lookup(root); ok {
			j.put(OpSet, root, document.Clone(value))
		} else {
			j.put(OpUnset, root, "")
		}
	}
}

// absorb deletes every entry overlapping roots and returns the topmost roots,
// grown by the far endpoint of any absorbed rename.
func (j *Journal) absorb(roots []string) []string {
	for {
		roots = topmost(roots)
		grew := false
		for eop, fields := range j.entries {
			for epath, epayload := range fields {
				ref := entryRef{op: eop, path: epath, payload: epayload}
				if !ref.overlaps(roots) {
					continue
				}
				delete(fields, epath)
				for _, p := range ref.paths() {
					if !coveredBy(p, roots) {
						roots = append(roots, p)
						grew = true
					}
				}
			}
		}
		if !grew {
			return roots
		}
	}
}

// widen replaces each root missing from the mirror with its highest ancestor
// that holds only the empty maps leading to it. Those maps were created by
// the absorbed entries; an $unset of the root would never create them in the
// stored document.
func widen(roots []string, mirror document.Map) bool {
	widened := false
	for i, root := range roots {
		if _, ok := mirror.Lookup(root); ok {
			continue
		}
		if ancestor := emptyAncestor(mirror, root); ancestor != "" {
			roots[i] = ancestor
			widened = true
		}
	}
	return widened
}

func emptyAncestor(mirror document.Map, path string) string {
	segments, err := document.SplitPath(path)
	if err != nil {
		return ""
	}

	found := ""
	for k := len(segments) - 1; k >= 1; k-- {
		ancestor := strings.Join(segments[:k], ".")
		value, ok := mirror.Lookup(ancestor)
		if !ok {
			break
		}
		var obj map[string]any
		switch t := value.(type) {
		case map[string]any:
			obj = t
		case document.Map:
			obj = t
		}
		if obj == nil {
			break
		}
		if k == len(segments)-1 {
			if len(obj) != 0 {
				break
			}
		} else if _, chained := obj[segments[k]]; !chained || len(obj) != 1 {
			break
		}
		found = ancestor
	}
	return found
}

func (j *Journal) put(op Op, path string, payload any) {
	fields := j.entries[op]
	if fields == nil {
		fields = make(map[string]any)
		j.entries[op] = fields
	}
	fields[path] = payload
}

type entryRef struct {
	op      Op
	path    string
	payload any
}

func (e entryRef) paths() []string {
	if e.op == OpRename {
		return []string{e.path, e.payload.(string)}
	}
	return []string{e.path}
}

func (e entryRef) overlaps(paths []string) bool {
	for _, mine := range e.paths() {
		for _, other := range paths {
			if document.Overlaps(mine, other) {
				return true
			}
		}
	}
	return false
}

// mergesWith reports whether repeated entries of op on one path merge in place
func mergesWith(op Op) bool {
	switch op {
	case OpSet, OpUnset, OpInc, OpPush, OpAddToSet, OpPullAll:
		return true
	}
	return false
}

// topmost drops duplicate paths and paths nested under another path in the set
func topmost(paths []string) []string {
	sort.Strings(paths)
	out := paths[:0]
	for _, p := range paths {
		if coveredBy(p, out) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func coveredBy(path string, roots []string) bool {
	for _, r := range roots {
		if r == path || document.IsAncestor(r, path) {
			return true
		}
	}
	return false
}

func cloneList(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = document.Clone(v)
	}
	return out
}
