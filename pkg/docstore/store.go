package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/docsess/internal/config"
	"github.com/harun/docsess/pkg/document"
	"github.com/harun/docsess/pkg/journal"
)

var (
	// ErrNotFound is returned when no document exists for an id
	ErrNotFound = errors.New("document not found")

	// ErrEmptyID is returned when a store call receives an empty id
	ErrEmptyID = errors.New("document id cannot be empty")

	// ErrClosed is returned by stores used after Close
	ErrClosed = errors.New("store is closed")
)

// UpdatedAtField is the bookkeeping timestamp a store may keep inside a
// document to find idle ones. It is not part of a document's fields.
const UpdatedAtField = "_updatedAt"

// Store is a key-addressed document collection
type Store interface {
	// FindOne returns the document stored under id, or ErrNotFound
	FindOne(ctx context.Context, id string) (document.Map, error)

	// Upsert applies spec to the document stored under id, creating it if absent
	Upsert(ctx context.Context, id string, spec journal.Spec) error

	// Remove deletes the document stored under id. Removing a missing id is not an error.
	Remove(ctx context.Context, id string) error

	// Close releases the store's resources
	Close() error
}

// Sweeper is implemented by stores that track modification times
type Sweeper interface {
	// PurgeBefore removes documents last modified before cutoff and returns how many were removed
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Open builds the store selected by cfg.Driver
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return NewMemory(), nil
	case config.DriverSQLite:
		return NewSQLite(cfg.DSN)
	case config.DriverMongo:
		return NewMongo(ctx, MongoConfig{
			URI:        cfg.DSN,
			Database:   cfg.Database,
			Collection: cfg.Collection,
			Timeout:    cfg.Timeout,
		})
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func checkID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	return nil
}

// stripReserved removes the storage key, the update timestamp and
// update-operator keys from a stored document
func stripReserved(doc document.Map) document.Map {
	for key := range doc {
		if key == "_id" || key == UpdatedAtField || strings.HasPrefix(key, "$") {
			delete(doc, key)
		}
	}
	return doc
}
