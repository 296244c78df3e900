package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/passkeyvault/internal/client/store"
	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

// fakeRemote is an in-memory vault server.
type fakeRemote struct {
	revision int64
	image    []byte

	offline      bool
	unauthorized bool

	revisionCalls int
	uploadCalls   int
}

func (f *fakeRemote) Register(context.Context, string, []byte, []byte) error { return nil }
func (f *fakeRemote) GetSalt(context.Context, string) ([]byte, error)        { return nil, nil }
func (f *fakeRemote) Login(context.Context, string, []byte) error            { return nil }
func (f *fakeRemote) Logout()                                                {}
func (f *fakeRemote) Ping(context.Context) error                             { return nil }
func (f *fakeRemote) Close() error                                           { return nil }

func (f *fakeRemote) CurrentRevision(context.Context) (int64, error) {
	f.revisionCalls++
	if f.offline {
		return 0, common.ErrSyncOffline
	}
	if f.unauthorized {
		return 0, common.ErrorUnauthorized
	}
	return f.revision, nil
}

func (f *fakeRemote) DownloadVault(context.Context) ([]byte, int64, error) {
	if f.offline {
		return nil, 0, common.ErrSyncOffline
	}
	return f.image, f.revision, nil
}

func (f *fakeRemote) UploadVault(_ context.Context, image []byte, baseRevision int64) (int64, error) {
	if f.offline {
		return 0, common.ErrSyncOffline
	}
	f.uploadCalls++
	if baseRevision != f.revision {
		return 0, common.ErrSyncConflict
	}
	f.image = image
	f.revision++
	return f.revision, nil
}

func (f *fakeRemote) ForceUploadVault(_ context.Context, image []byte, claimedRevision int64) (int64, error) {
	if f.offline {
		return 0, common.ErrSyncOffline
	}
	f.uploadCalls++
	f.image = image
	f.revision++
	if claimedRevision >= f.revision {
		f.revision = claimedRevision + 1
	}
	return f.revision, nil
}

func newInitializedStore(t *testing.T, dir string) *store.Store {
	t.Helper()
	st := store.New(dir, nil)
	_, err := st.Initialize(context.Background(), []byte("passphrase"))
	require.NoError(t, err)
	return st
}

func newSyncer(t *testing.T, st *store.Store, fr *fakeRemote, dir string) *Syncer {
	t.Helper()
	return New(st, fr, dir, nil, WithRetryBudget(2, time.Millisecond))
}

func TestCleanVaultInSyncStaysSynced(t *testing.T) {
	dir := t.TempDir()
	st := newInitializedStore(t, dir)
	fr := &fakeRemote{}
	s := newSyncer(t, st, fr, dir)

	status, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSynced, status.State)
	assert.Zero(t, fr.uploadCalls)
}

func TestDirtyVaultIsUploaded(t *testing.T) {
	dir := t.TempDir()
	st := newInitializedStore(t, dir)
	fr := &fakeRemote{}
	s := newSyncer(t, st, fr, dir)

	s.MarkDirty()

	status, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateLocalAhead, status.State)
	assert.Equal(t, int64(1), status.LocalRevision)
	assert.Equal(t, 1, fr.uploadCalls)
	assert.NotEmpty(t, fr.image)

	// next cycle is clean
	status, err = s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSynced, status.State)
	assert.Equal(t, 1, fr.uploadCalls)
}

func TestRollbackRecovery(t *testing.T) {
	dir := t.TempDir()
	st := newInitializedStore(t, dir)
	fr := &fakeRemote{}
	s := newSyncer(t, st, fr, dir)

	// get local and server to revision 5
	for i := 0; i < 5; i++ {
		s.MarkDirty()
		_, err := s.Sync(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, int64(5), fr.revision)

	localImage := fr.image

	// server restored from an old backup
	fr.revision = 3
	fr.image = nil

	status, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateConflictRollback, status.State)
	assert.Equal(t, localImage, fr.image)

	// the repaired server lands above every revision a device has seen,
	// and the tracked revision never moves backward
	assert.GreaterOrEqual(t, fr.revision, int64(5))
	assert.GreaterOrEqual(t, status.LocalRevision, int64(5))

	// and the repaired state is stable
	status, err = s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSynced, status.State)
}

func TestRollbackRecoveryDoesNotCascadeToOtherDevices(t *testing.T) {
	dirA := t.TempDir()
	stA := newInitializedStore(t, dirA)
	fr := &fakeRemote{}
	sA := newSyncer(t, stA, fr, dirA)

	for i := 0; i < 5; i++ {
		sA.MarkDirty()
		_, err := sA.Sync(context.Background())
		require.NoError(t, err)
	}

	// device A repairs a server rollback
	fr.revision = 3
	status, err := sA.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateConflictRollback, status.State)

	// device B last synced at revision 5 and missed the whole episode;
	// against the repaired server it must download, not re-trigger recovery
	dirB := t.TempDir()
	stB := store.New(dirB, nil)
	require.NoError(t, saveState(statePath(dirB), persistedState{LastSyncedRevision: 5}))
	sB := newSyncer(t, stB, fr, dirB)

	uploads := fr.uploadCalls
	status, err = sB.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSynced, status.State)
	assert.Equal(t, uploads, fr.uploadCalls)
	assert.GreaterOrEqual(t, status.LocalRevision, int64(5))
}

func TestRemoteAheadImportsWhenLocked(t *testing.T) {
	dirA := t.TempDir()
	stA := newInitializedStore(t, dirA)
	fr := &fakeRemote{}
	sA := newSyncer(t, stA, fr, dirA)

	sA.MarkDirty()
	_, err := sA.Sync(context.Background())
	require.NoError(t, err)

	// second device with no vault yet
	dirB := t.TempDir()
	stB := store.New(dirB, nil)
	sB := newSyncer(t, stB, fr, dirB)

	status, err := sB.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSynced, status.State)
	assert.Equal(t, int64(1), status.LocalRevision)
	assert.True(t, stB.Initialized())
}

func TestRemoteAheadDeferredWhileUnlocked(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir, nil)
	key, err := st.Initialize(context.Background(), []byte("passphrase"))
	require.NoError(t, err)
	require.NoError(t, st.Unlock(context.Background(), key))
	defer st.Lock()

	fr := &fakeRemote{revision: 4, image: []byte("remote image")}
	s := newSyncer(t, st, fr, dir)

	status, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRemoteAhead, status.State)
	assert.Equal(t, int64(4), status.ServerRevision)
	// nothing was imported over the live vault
	assert.True(t, st.IsUnlocked())
}

func TestOfflineExhaustsBudgetWithoutError(t *testing.T) {
	dir := t.TempDir()
	st := newInitializedStore(t, dir)
	fr := &fakeRemote{offline: true}
	s := newSyncer(t, st, fr, dir)

	status, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateOffline, status.State)
	assert.Equal(t, 2, fr.revisionCalls)
}

func TestUnauthorizedSurfacesAndPreservesVault(t *testing.T) {
	dir := t.TempDir()
	st := newInitializedStore(t, dir)
	fr := &fakeRemote{unauthorized: true}
	s := newSyncer(t, st, fr, dir)
	s.NoteUsername("alice")

	_, err := s.Sync(context.Background())
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	// the vault files survive the forced logout
	assert.True(t, st.Initialized())
	assert.Equal(t, "alice", s.LastUsername())
}

func TestStatusCallback(t *testing.T) {
	dir := t.TempDir()
	st := newInitializedStore(t, dir)
	fr := &fakeRemote{}

	var seen []State
	s := New(st, fr, dir, nil,
		WithRetryBudget(1, time.Millisecond),
		WithStatusCallback(func(st Status) { seen = append(seen, st.State) }))

	_, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []State{StateSynced}, seen)
}
