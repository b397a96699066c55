package session

import (
	"context"
	"testing"
	"time"

	"github.com/harun/docsess/pkg/docstore"
	"github.com/harun/docsess/pkg/document"
	"github.com/harun/docsess/pkg/journal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockStore is a testify mock of docstore.Store
type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindOne(ctx context.Context, id string) (document.Map, error) {
	args := m.Called(ctx, id)
	doc, _ := args.Get(0).(document.Map)
	return doc, args.Error(1)
}

func (m *mockStore) Upsert(ctx context.Context, id string, spec journal.Spec) error {
	args := m.Called(ctx, id, spec)
	return args.Error(0)
}

func (m *mockStore) Remove(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	return nil
}

func setupTestManager(t *testing.T) (*Manager, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory()
	mgr, err := NewManager(store, ManagerConfig{})
	require.NoError(t, err)
	return mgr, store
}

// reloadFresh loads id through a new session instance, as a later request would
func reloadFresh(t *testing.T, mgr *Manager, id string) *Session {
	t.Helper()
	s, err := mgr.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for store call")
	}
}
