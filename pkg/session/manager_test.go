package session

import (
	"context"
	"errors"
	"testing"

	"github.com/harun/docsess/pkg/docstore"
	"github.com/harun/docsess/pkg/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	tests := []struct {
		name      string
		store     docstore.Store
		cfg       ManagerConfig
		shouldErr bool
	}{
		{"default id length", docstore.NewMemory(), ManagerConfig{}, false},
		{"custom id length", docstore.NewMemory(), ManagerConfig{IDLength: 32}, false},
		{"missing store", nil, ManagerConfig{}, true},
		{"short ids", docstore.NewMemory(), ManagerConfig{IDLength: 6}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, err := NewManager(tt.store, tt.cfg)
			if tt.shouldErr {
				assert.Error(t, err)
				assert.Nil(t, mgr)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, mgr)
			}
		})
	}

	_, err := NewManager(nil, ManagerConfig{})
	assert.ErrorIs(t, err, ErrMissingStore)
}

func TestManager_CreateGeneratesDistinctIDs(t *testing.T) {
	store := docstore.NewMemory()
	mgr, err := NewManager(store, ManagerConfig{IDLength: 32})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := mgr.Create()
		assert.Len(t, s.ID(), 32)
		assert.False(t, seen[s.ID()])
		seen[s.ID()] = true
	}

	// Nothing is stored until a save
	assert.Equal(t, 0, store.Len())
}

func TestManager_Get(t *testing.T) {
	ctx := context.Background()
	mgr, store := setupTestManager(t)

	require.NoError(t, store.Upsert(ctx, "stored-session-id", journal.Spec{"$set": {"name": "koa"}}))

	s, err := mgr.Get(ctx, "stored-session-id")
	require.NoError(t, err)
	assert.Equal(t, "stored-session-id", s.ID())
	assert.False(t, s.IsNew())
	assert.False(t, s.IsDirty())
	v, _ := s.Get("name")
	assert.Equal(t, "koa", v)

	_, err = mgr.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = mgr.Get(ctx, "")
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestManager_GetStoreFailure(t *testing.T) {
	store := new(mockStore)
	mgr, err := NewManager(store, ManagerConfig{})
	require.NoError(t, err)

	storeErr := errors.New("unreachable")
	store.On("FindOne", mock.Anything, "abc").Return(nil, storeErr)

	_, err = mgr.Get(context.Background(), "abc")
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestManager_Remove(t *testing.T) {
	ctx := context.Background()
	mgr, store := setupTestManager(t)

	s := mgr.Create()
	require.NoError(t, s.Set("a", 1))
	require.NoError(t, s.Save(ctx))
	require.Equal(t, 1, store.Len())

	require.NoError(t, mgr.Remove(ctx, s.ID()))
	assert.Equal(t, 0, store.Len())

	assert.ErrorIs(t, mgr.Remove(ctx, ""), ErrMissingID)
}

func TestNewID(t *testing.T) {
	id, err := NewID(DefaultIDLength)
	require.NoError(t, err)
	assert.Len(t, id, DefaultIDLength)
	assert.Regexp(t, `^[A-Za-z0-9_-]+$`, id)

	_, err = NewID(4)
	assert.Error(t, err)
}
