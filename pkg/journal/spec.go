package journal

import (
	"errors"

	"github.com/harun/docsess/pkg/document"
)

// Op names an update operator
type Op string

const (
	OpSet      Op = "$set"
	OpUnset    Op = "$unset"
	OpInc      Op = "$inc"
	OpRename   Op = "$rename"
	OpPush     Op = "$push"
	OpAddToSet Op = "$addToSet"
	OpPullAll  Op = "$pullAll"
	OpPop      Op = "$pop"
)

// EachKey is the modifier wrapping value lists for $push and $addToSet
const EachKey = "$each"

// applyOrder fixes the evaluation order of operators inside Apply
var applyOrder = []Op{OpSet, OpUnset, OpInc, OpRename, OpPush, OpAddToSet, OpPullAll, OpPop}

var (
	// ErrTypeMismatch is returned when an operator meets a value of the wrong shape
	ErrTypeMismatch = document.ErrTypeMismatch

	// ErrInvalidSpec is returned when an update spec is malformed
	ErrInvalidSpec = errors.New("invalid update spec")

	// ErrConflictingPaths is returned when two operators in one spec touch overlapping paths
	ErrConflictingPaths = errors.New("conflicting update paths")
)

// Spec is an update document: operator name to field path to payload.
// It has the same shape as a MongoDB update document.
type Spec map[string]map[string]any

// IsEmpty reports whether the spec holds no operations
func (s Spec) IsEmpty() bool {
	for _, fields := range s {
		if len(fields) > 0 {
			return false
		}
	}
	return true
}

// Paths returns every field path the spec touches, including rename targets
func (s Spec) Paths() []string {
	var paths []string
	for op, fields := range s {
		for path, payload := range fields {
			paths = append(paths, path)
			if Op(op) == OpRename {
				if target, ok := payload.(string); ok {
					paths = append(paths, target)
				}
			}
		}
	}
	return paths
}
