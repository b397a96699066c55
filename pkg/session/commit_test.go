package session

import (
	"context"
	"errors"
	"testing"

	"github.com/harun/docsess/pkg/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCommit_CommitterIsMemoized(t *testing.T) {
	mgr, _ := setupTestManager(t)
	s := mgr.Create()

	first := s.Committer()
	assert.Same(t, first, s.Committer())

	other := mgr.Create()
	assert.NotSame(t, first, other.Committer())
}

func TestCommit_EmptyJournalMakesNoStoreCall(t *testing.T) {
	store := new(mockStore)
	mgr, err := NewManager(store, ManagerConfig{})
	require.NoError(t, err)

	s := mgr.Create()
	require.NoError(t, s.Save(context.Background()))

	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, s.IsNew())
}

func TestCommit_SendsOneCombinedUpsert(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	mgr, err := NewManager(store, ManagerConfig{})
	require.NoError(t, err)

	s := mgr.Create()
	require.NoError(t, s.Set("name", "koa"))
	require.NoError(t, s.Inc("views", 1))
	require.NoError(t, s.Push("tags", "a"))

	want := journal.Spec{
		"$set":  {"name": "koa"},
		"$inc":  {"views": int64(1)},
		"$push": {"tags": map[string]any{"$each": []any{"a"}}},
	}
	store.On("Upsert", mock.Anything, s.ID(), want).Return(nil).Once()

	require.NoError(t, s.Committer().Run(ctx))
	store.AssertExpectations(t)
	assert.False(t, s.IsDirty())
	assert.False(t, s.IsNew())
}

func TestCommit_StoreFailureKeepsJournal(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	mgr, err := NewManager(store, ManagerConfig{})
	require.NoError(t, err)

	s := mgr.Create()
	require.NoError(t, s.Inc("views", 1))
	pending := s.Pending()

	storeErr := errors.New("connection reset")
	store.On("Upsert", mock.Anything, s.ID(), pending).Return(storeErr).Once()

	err = s.Save(ctx)
	assert.ErrorIs(t, err, storeErr)
	assert.True(t, s.IsDirty())
	assert.False(t, s.IsSaving())
	assert.Equal(t, pending, s.Pending())

	// A retry sends the same journal
	store.On("Upsert", mock.Anything, s.ID(), pending).Return(nil).Once()
	require.NoError(t, s.Save(ctx))
	assert.False(t, s.IsDirty())
	store.AssertExpectations(t)
}

func TestCommit_OverlappingSaveConflicts(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	mgr, err := NewManager(store, ManagerConfig{})
	require.NoError(t, err)

	s := mgr.Create()
	require.NoError(t, s.Push("tags", "a"))
	inFlight := s.Pending()

	started := make(chan struct{})
	release := make(chan struct{})
	store.On("Upsert", mock.Anything, s.ID(), inFlight).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil).Once()

	done := make(chan error, 1)
	go func() { done <- s.Save(ctx) }()
	waitFor(t, started)

	assert.True(t, s.IsSaving())
	assert.ErrorIs(t, s.Save(ctx), ErrConflict)
	assert.ErrorIs(t, s.Committer().Run(ctx), ErrConflict)

	// Mutations during the save are kept for the next one
	require.NoError(t, s.Push("tags", "b"))

	close(release)
	require.NoError(t, <-done)

	assert.False(t, s.IsSaving())
	assert.Equal(t, journal.Spec{"$push": {"tags": map[string]any{"$each": []any{"b"}}}}, s.Pending())
	store.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestCommit_FailureMergesInFlightEntriesFirst(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	mgr, err := NewManager(store, ManagerConfig{})
	require.NoError(t, err)

	s := mgr.Create()
	require.NoError(t, s.Push("tags", "a"))
	require.NoError(t, s.Inc("views", 1))
	inFlight := s.Pending()

	started := make(chan struct{})
	release := make(chan struct{})
	store.On("Upsert", mock.Anything, s.ID(), inFlight).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
		}).
		Return(errors.New("timeout")).Once()

	done := make(chan error, 1)
	go func() { done <- s.Save(ctx) }()
	waitFor(t, started)

	require.NoError(t, s.Push("tags", "b"))
	require.NoError(t, s.Inc("views", 2))

	close(release)
	assert.Error(t, <-done)

	want := journal.Spec{
		"$push": {"tags": map[string]any{"$each": []any{"a", "b"}}},
		"$inc":  {"views": int64(3)},
	}
	assert.Equal(t, want, s.Pending())
}

func TestCommit_IncrementsAccumulateAcrossCommits(t *testing.T) {
	ctx := context.Background()
	mgr, _ := setupTestManager(t)

	s := mgr.Create()
	require.NoError(t, s.Inc("views", 1))
	require.NoError(t, s.Save(ctx))

	second := reloadFresh(t, mgr, s.ID())
	require.NoError(t, second.Inc("views", 1))
	require.NoError(t, second.Save(ctx))

	v, _ := reloadFresh(t, mgr, s.ID()).Get("views")
	assert.Equal(t, int64(2), v)
}

func TestCommit_CollapsedParentsMatchStore(t *testing.T) {
	ctx := context.Background()
	mgr, _ := setupTestManager(t)

	s := mgr.Create()
	require.NoError(t, s.Set("profile.name", "x"))
	require.NoError(t, s.Unset("profile.name"))
	require.NoError(t, s.Set("tags", []any{1}))
	require.NoError(t, s.Save(ctx))
	assert.Equal(t, s.Serialize(), reloadFresh(t, mgr, s.ID()).Serialize())

	require.NoError(t, s.Rename("profile", "tags"))
	require.NoError(t, s.Save(ctx))

	stored := reloadFresh(t, mgr, s.ID())
	assert.Equal(t, s.Serialize(), stored.Serialize())
	v, _ := stored.Get("tags")
	assert.Equal(t, map[string]any{}, v)
}
