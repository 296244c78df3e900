// Package syncer reconciles the local vault against the remote copy using
// revision comparison. It detects server rollbacks (remote revision behind
// the last synced one) and repairs them by re-uploading the local vault, and
// it preserves the local vault across forced logouts so the next login can
// restore server state.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/passkeyvault/internal/client/remote"
	"github.com/dmitrijs2005/passkeyvault/internal/client/store"
	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/dmitrijs2005/passkeyvault/internal/logging"
)

// State is the outcome of the last sync cycle.
type State string

const (
	StateSynced           State = "synced"
	StateLocalAhead       State = "local_ahead"
	StateRemoteAhead      State = "remote_ahead"
	StateConflictRollback State = "conflict_rollback"
	StateOffline          State = "offline"
)

// Status is reported to the optional status callback after every cycle.
type Status struct {
	State          State
	LocalRevision  int64
	ServerRevision int64
}

const (
	defaultAuxTimeout  = 5 * time.Second
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
)

// Syncer runs best-effort sync cycles. Cycles are serialized; the store's
// write lock is never held while a network call is in flight.
type Syncer struct {
	store  *store.Store
	remote remote.Client
	log    logging.Logger

	statePath   string
	auxTimeout  time.Duration
	maxAttempts uint64
	backoffBase time.Duration
	onStatus    func(Status)

	mu sync.Mutex
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithStatusCallback sets the function invoked after each sync cycle.
func WithStatusCallback(fn func(Status)) Option {
	return func(s *Syncer) { s.onStatus = fn }
}

// WithAuxTimeout bounds the small fetches (revision checks) in a cycle.
func WithAuxTimeout(d time.Duration) Option {
	return func(s *Syncer) { s.auxTimeout = d }
}

// WithRetryBudget sets the attempt count and backoff base for a cycle.
func WithRetryBudget(attempts uint64, backoff time.Duration) Option {
	return func(s *Syncer) {
		s.maxAttempts = attempts
		s.backoffBase = backoff
	}
}

// New returns a Syncer whose bookkeeping file lives under dir, next to the
// sealed vault.
func New(st *store.Store, rc remote.Client, dir string, log logging.Logger, opts ...Option) *Syncer {
	if log == nil {
		log = logging.Discard()
	}
	s := &Syncer{
		store:       st,
		remote:      rc,
		log:         log.With("component", "syncer"),
		statePath:   statePath(dir),
		auxTimeout:  defaultAuxTimeout,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxAttempts == 0 {
		s.maxAttempts = 1
	}
	return s
}

// MarkDirty records that a local write committed after the last upload.
// Wired to the store's commit hook.
func (s *Syncer) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := loadState(s.statePath)
	if err != nil {
		s.log.Warn(context.Background(), "failed to load sync state", "error", err)
		return
	}
	if st.Dirty {
		return
	}
	st.Dirty = true
	if err := saveState(s.statePath, st); err != nil {
		s.log.Warn(context.Background(), "failed to save sync state", "error", err)
	}
}

// NoteUsername records the account name for login pre-fill after a forced
// logout.
func (s *Syncer) NoteUsername(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := loadState(s.statePath)
	if err != nil {
		return
	}
	st.LastUsername = username
	if err := saveState(s.statePath, st); err != nil {
		s.log.Warn(context.Background(), "failed to save sync state", "error", err)
	}
}

// LastUsername returns the recorded account name, empty if none.
func (s *Syncer) LastUsername() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsernameLocked()
}

func (s *Syncer) lastUsernameLocked() string {
	st, _ := loadState(s.statePath)
	return st.LastUsername
}

// HandleForcedLogout drops the session tokens but keeps the local vault and
// its sync state untouched. The vault is re-uploaded on the next login if
// the server turns out to be behind.
func (s *Syncer) HandleForcedLogout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handleForcedLogoutLocked()
}

func (s *Syncer) handleForcedLogoutLocked() {
	s.remote.Logout()
	s.log.Info(context.Background(), "forced logout: local vault preserved",
		"username", s.lastUsernameLocked())
}

// Sync runs one reconciliation cycle. Offline is a normal outcome, not an
// error; the retry budget only covers transient network failures inside the
// cycle. An unauthorized response is returned to the caller so the session
// layer can run the forced-logout path.
func (s *Syncer) Sync(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := loadState(s.statePath)
	if err != nil {
		return Status{}, err
	}

	var status Status
	backoff := retry.WithMaxRetries(s.maxAttempts-1, retry.NewExponential(s.backoffBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var cycleErr error
		status, cycleErr = s.cycle(ctx, &st)
		if errors.Is(cycleErr, common.ErrSyncOffline) {
			return retry.RetryableError(cycleErr)
		}
		return cycleErr
	})

	if errors.Is(err, common.ErrSyncOffline) {
		// budget exhausted: keep operating on the local copy
		status = Status{State: StateOffline, LocalRevision: st.LastSyncedRevision}
		err = nil
	}
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			s.handleForcedLogoutLocked()
		}
		return status, err
	}

	if err := saveState(s.statePath, st); err != nil {
		return status, err
	}
	if s.onStatus != nil {
		s.onStatus(status)
	}
	return status, nil
}

func (s *Syncer) cycle(ctx context.Context, st *persistedState) (Status, error) {
	auxCtx, cancel := context.WithTimeout(ctx, s.auxTimeout)
	serverRev, err := s.remote.CurrentRevision(auxCtx)
	cancel()
	if err != nil {
		return Status{}, err
	}

	local := st.LastSyncedRevision

	switch {
	case serverRev < local:
		// the server lost data; restore it from the local copy. The forced
		// upload carries the local revision so the server lands above it
		// and the tracked revision never moves backward.
		s.log.Warn(ctx, "server rollback detected",
			"local_revision", local, "server_revision", serverRev)
		newRev, err := s.forceUpload(ctx, local)
		if err != nil {
			return Status{}, err
		}
		st.LastSyncedRevision = newRev
		st.Dirty = false
		return Status{State: StateConflictRollback, LocalRevision: newRev, ServerRevision: newRev}, nil

	case st.Dirty:
		// local writes win the full-blob race: the vault is one account's
		// data and the newest committed state is authoritative
		newRev, err := s.upload(ctx, serverRev)
		if errors.Is(err, common.ErrSyncConflict) {
			// someone uploaded between the revision fetch and ours
			return Status{}, fmt.Errorf("%w: concurrent upload", common.ErrSyncOffline)
		}
		if err != nil {
			return Status{}, err
		}
		st.LastSyncedRevision = newRev
		st.Dirty = false
		return Status{State: StateLocalAhead, LocalRevision: newRev, ServerRevision: newRev}, nil

	case serverRev > local:
		if s.store.IsUnlocked() {
			// applying a downloaded image needs the vault locked; report
			// and let the next lock/unlock cycle pick it up
			return Status{State: StateRemoteAhead, LocalRevision: local, ServerRevision: serverRev}, nil
		}
		image, rev, err := s.remote.DownloadVault(ctx)
		if err != nil {
			return Status{}, err
		}
		if err := s.store.ImportImage(image); err != nil {
			return Status{}, err
		}
		st.LastSyncedRevision = rev
		st.Dirty = false
		return Status{State: StateSynced, LocalRevision: rev, ServerRevision: rev}, nil

	default:
		return Status{State: StateSynced, LocalRevision: local, ServerRevision: serverRev}, nil
	}
}

// upload snapshots the vault and sends it. The snapshot is taken before the
// network call so no store lock is held while the request is in flight.
func (s *Syncer) upload(ctx context.Context, baseRevision int64) (int64, error) {
	image, err := s.store.ExportImage()
	if err != nil {
		return 0, err
	}
	return s.remote.UploadVault(ctx, image, baseRevision)
}

// forceUpload overwrites the server's vault during rollback recovery,
// claiming the tracked local revision as the floor for the new one.
func (s *Syncer) forceUpload(ctx context.Context, claimedRevision int64) (int64, error) {
	image, err := s.store.ExportImage()
	if err != nil {
		return 0, err
	}
	return s.remote.ForceUploadVault(ctx, image, claimedRevision)
}
