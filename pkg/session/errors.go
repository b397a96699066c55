package session

import (
	"errors"

	"github.com/harun/docsess/pkg/docstore"
	"github.com/harun/docsess/pkg/journal"
)

var (
	// ErrMissingStore is returned when a manager is built without a store
	ErrMissingStore = errors.New("a document store is required")

	// ErrConflict is returned when a save starts while another save of the same session is in flight
	ErrConflict = errors.New("the session is already being saved")

	// ErrMissingID is returned when an operation needs a session id and none was given
	ErrMissingID = errors.New("session id is required")

	// ErrReservedField is returned when a mutator addresses a reserved key
	ErrReservedField = errors.New("reserved field")

	// ErrTypeMismatch is returned when an operator meets a value of the wrong shape
	ErrTypeMismatch = journal.ErrTypeMismatch

	// ErrNotFound is returned when no stored document exists for a session id
	ErrNotFound = docstore.ErrNotFound
)
