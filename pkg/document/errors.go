package document

import "errors"

var (
	// ErrInvalidPath is returned when a field path is empty or has an empty segment
	ErrInvalidPath = errors.New("invalid field path")

	// ErrTypeMismatch is returned when an existing value has a shape incompatible with the operation
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnsupportedValue is returned when a value cannot be represented in a document
	ErrUnsupportedValue = errors.New("unsupported value")
)
