package journal

import (
	"fmt"
	"sort"

	"github.com/harun/docsess/pkg/document"
)

// Apply evaluates spec against a copy of doc and returns the updated copy.
// doc is never modified; on error no partial result is returned.
func Apply(doc document.Map, spec Spec) (document.Map, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}

	out := doc.Clone()
	for _, op := range applyOrder {
		fields := spec[string(op)]
		paths := make([]string, 0, len(fields))
		for path := range fields {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		for _, path := range paths {
			if err := applyOne(out, op, path, fields[path]); err != nil {
				return nil, fmt.Errorf("%s %s: %w", op, path, err)
			}
		}
	}
	return out, nil
}

// Validate checks operator names, payload shapes and path overlaps
func Validate(spec Spec) error {
	known := make(map[string]bool, len(applyOrder))
	for _, op := range applyOrder {
		known[string(op)] = true
	}

	for op, fields := range spec {
		if !known[op] {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidSpec, op)
		}
		for path, payload := range fields {
			if _, err := document.SplitPath(path); err != nil {
				return err
			}
			if Op(op) == OpRename {
				target, ok := payload.(string)
				if !ok {
					return fmt.Errorf("%w: $rename target for %s must be a string", ErrInvalidSpec, path)
				}
				if _, err := document.SplitPath(target); err != nil {
					return err
				}
				if document.Overlaps(path, target) {
					return fmt.Errorf("%w: $rename source %s and target %s overlap", ErrConflictingPaths, path, target)
				}
			}
		}
	}

	paths := spec.Paths()
	sort.Strings(paths)
	for i := 1; i < len(paths); i++ {
		for k := 0; k < i; k++ {
			if document.Overlaps(paths[k], paths[i]) {
				return fmt.Errorf("%w: %s and %s", ErrConflictingPaths, paths[k], paths[i])
			}
		}
	}
	return nil
}

func applyOne(doc document.Map, op Op, path string, payload any) error {
	switch op {
	case OpSet:
		value, err := document.Normalize(payload)
		if err != nil {
			return err
		}
		return doc.Assign(path, value)

	case OpUnset:
		_, err := doc.Delete(path)
		return err

	case OpInc:
		delta, err := document.Normalize(payload)
		if err != nil {
			return err
		}
		current, ok := doc.Lookup(path)
		if !ok || current == nil {
			current = int64(0)
		}
		sum, err := document.Add(current, delta)
		if err != nil {
			return err
		}
		return doc.Assign(path, sum)

	case OpRename:
		target := payload.(string)
		value, ok := doc.Lookup(path)
		if !ok {
			return doc.CheckTraversable(path)
		}
		if err := doc.CheckTraversable(target); err != nil {
			return err
		}
		if _, err := doc.Delete(path); err != nil {
			return err
		}
		return doc.Assign(target, value)

	case OpPush, OpAddToSet:
		values, err := eachValues(payload)
		if err != nil {
			return err
		}
		seq, err := sequenceAt(doc, path)
		if err != nil {
			return err
		}
		if op == OpPush {
			seq = append(seq, values...)
		} else {
			seq = AppendUnique(seq, values)
		}
		return doc.Assign(path, seq)

	case OpPullAll:
		values, err := listValues(payload)
		if err != nil {
			return err
		}
		current, ok := doc.Lookup(path)
		if !ok || current == nil {
			return doc.CheckTraversable(path)
		}
		seq, ok := document.AsSequence(current)
		if !ok {
			return fmt.Errorf("%w: %s is %s, not a sequence", ErrTypeMismatch, path, document.KindOf(current))
		}
		return doc.Assign(path, RemoveAll(seq, values))

	case OpPop:
		direction, err := popDirection(payload)
		if err != nil {
			return err
		}
		current, ok := doc.Lookup(path)
		if !ok || current == nil {
			return doc.CheckTraversable(path)
		}
		seq, ok := document.AsSequence(current)
		if !ok {
			return fmt.Errorf("%w: %s is %s, not a sequence", ErrTypeMismatch, path, document.KindOf(current))
		}
		if len(seq) == 0 {
			return nil
		}
		if direction > 0 {
			seq = seq[:len(seq)-1]
		} else {
			seq = seq[1:]
		}
		return doc.Assign(path, append([]any{}, seq...))
	}

	return fmt.Errorf("%w: unknown operator %q", ErrInvalidSpec, op)
}

// AppendUnique appends each value not already deep-equal to an element of
// seq (or to a value appended before it), preserving first-seen order.
func AppendUnique(seq []any, values []any) []any {
	for _, v := range values {
		if document.IndexOf(seq, v) >= 0 {
			continue
		}
		seq = append(seq, v)
	}
	return seq
}

// RemoveAll returns the elements of seq not deep-equal to any of values
func RemoveAll(seq []any, values []any) []any {
	out := make([]any, 0, len(seq))
	for _, item := range seq {
		if document.IndexOf(values, item) >= 0 {
			continue
		}
		out = append(out, item)
	}
	return out
}

// sequenceAt returns a copy of the sequence at path; missing or null yields an empty sequence
func sequenceAt(doc document.Map, path string) ([]any, error) {
	current, ok := doc.Lookup(path)
	if !ok || current == nil {
		if err := doc.CheckTraversable(path); err != nil {
			return nil, err
		}
		return []any{}, nil
	}
	seq, ok := document.AsSequence(current)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s, not a sequence", ErrTypeMismatch, path, document.KindOf(current))
	}
	return append([]any{}, seq...), nil
}

// eachValues reads a $push/$addToSet payload: {"$each": [...]} or a single value
func eachValues(payload any) ([]any, error) {
	if obj, ok := payload.(map[string]any); ok {
		if each, ok := obj[EachKey]; ok {
			return listValues(each)
		}
	}
	v, err := document.Normalize(payload)
	if err != nil {
		return nil, err
	}
	return []any{v}, nil
}

func listValues(payload any) ([]any, error) {
	v, err := document.Normalize(payload)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list of values, got %s", ErrInvalidSpec, document.KindOf(v))
	}
	return list, nil
}

func popDirection(payload any) (int64, error) {
	v, err := document.Normalize(payload)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		if n == 1 || n == -1 {
			return n, nil
		}
	case float64:
		if n == 1 || n == -1 {
			return int64(n), nil
		}
	}
	return 0, fmt.Errorf("%w: $pop expects 1 or -1", ErrInvalidSpec)
}
