package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/docsess/internal/observability"
	"github.com/harun/docsess/internal/tracing"
	"github.com/harun/docsess/pkg/document"
	"github.com/harun/docsess/pkg/journal"
	"go.opentelemetry.io/otel/attribute"
)

const driverMemory = "memory"

type memoryRecord struct {
	doc       document.Map
	updatedAt time.Time
}

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string]memoryRecord
	now    func() time.Time
	closed bool
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	observability.EnsureRegistered()
	return &Memory{
		docs: make(map[string]memoryRecord),
		now:  time.Now,
	}
}

// FindOne returns a copy of the document stored under id
func (m *Memory) FindOne(ctx context.Context, id string) (document.Map, error) {
	_, span := tracing.StartSpan(ctx, "docsess.docstore", "memory.find_one", attribute.String("driver", driverMemory))
	defer span.End()
	start := time.Now()

	doc, err := m.findOne(id)
	if err != nil && err != ErrNotFound {
		tracing.Fail(span, err)
	}
	observability.RecordStoreOperation(driverMemory, "find_one", time.Since(start), ignoreNotFound(err))
	return doc, err
}

func (m *Memory) findOne(id string) (document.Map, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	rec, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.doc.Clone(), nil
}

// Upsert applies spec to the document stored under id
func (m *Memory) Upsert(ctx context.Context, id string, spec journal.Spec) error {
	_, span := tracing.StartSpan(ctx, "docsess.docstore", "memory.upsert", attribute.String("driver", driverMemory))
	defer span.End()
	start := time.Now()

	err := m.upsert(id, spec)
	observability.RecordStoreOperation(driverMemory, "upsert", time.Since(start), err)
	return tracing.Fail(span, err)
}

func (m *Memory) upsert(id string, spec journal.Spec) error {
	if err := checkID(id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	current := m.docs[id].doc
	if current == nil {
		current = document.Map{}
	}
	next, err := journal.Apply(current, spec)
	if err != nil {
		return fmt.Errorf("failed to apply update: %w", err)
	}
	m.docs[id] = memoryRecord{doc: next, updatedAt: m.now()}
	return nil
}

// Remove deletes the document stored under id
func (m *Memory) Remove(ctx context.Context, id string) error {
	_, span := tracing.StartSpan(ctx, "docsess.docstore", "memory.remove", attribute.String("driver", driverMemory))
	defer span.End()

	if err := checkID(id); err != nil {
		return tracing.Fail(span, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return tracing.Fail(span, ErrClosed)
	}
	delete(m.docs, id)
	observability.RecordStoreOperation(driverMemory, "remove", 0, nil)
	return nil
}

// PurgeBefore removes documents last modified before cutoff
func (m *Memory) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	_, span := tracing.StartSpan(ctx, "docsess.docstore", "memory.purge_before")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, tracing.Fail(span, ErrClosed)
	}

	purged := 0
	for id, rec := range m.docs {
		if rec.updatedAt.Before(cutoff) {
			delete(m.docs, id)
			purged++
		}
	}
	span.SetAttributes(attribute.Int("purged", purged))
	return purged, nil
}

// Len returns the number of stored documents
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Close drops every document; later calls fail with ErrClosed
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.docs = nil
	return nil
}

func ignoreNotFound(err error) error {
	if err == ErrNotFound {
		return nil
	}
	return err
}
