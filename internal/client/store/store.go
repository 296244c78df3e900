// Package store implements the encrypted vault store: a SQLite database that
// exists in plaintext only while unlocked, sealed into a single
// XChaCha20-Poly1305 blob at rest. Every committed write transaction
// re-serializes and re-seals the database, so callers batch their mutations.
package store

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/passkeyvault/internal/client/store/migrations"
	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/dmitrijs2005/passkeyvault/internal/cryptox"
	"github.com/dmitrijs2005/passkeyvault/internal/dbx"
	"github.com/dmitrijs2005/passkeyvault/internal/logging"
)

// sealInfo is the HKDF info string binding the seal key to its purpose.
const sealInfo = "passkeyvault.blob"

// blobAAD authenticates the blob format version alongside the ciphertext.
var blobAAD = []byte("passkeyvault.blob.v1")

// ErrAlreadyInitialized is returned by Initialize when a vault exists.
var ErrAlreadyInitialized = errors.New("vault already initialized")

// Store owns the vault files in one directory and the decrypted connection
// lifecycle. A single Store is constructed at process start and shared by
// reference; there is no global instance.
//
// Concurrency: mu serializes writers against readers. Read queries (View)
// share the lock; write transactions (WithTx) and lock/unlock take it
// exclusively. The underlying connection is never used for concurrent writes.
type Store struct {
	dir string
	log logging.Logger

	mu      sync.RWMutex
	db      *sql.DB
	sealKey []byte
	header  Header

	ctxMu        sync.Mutex
	unlockCtx    context.Context
	cancelUnlock context.CancelFunc

	commitHook func(context.Context)
}

// New returns a Store rooted at dir. The directory is created on Initialize.
// A plaintext working copy left behind by a crash of a previous process is
// removed here; the sealed blob is the source of truth.
func New(dir string, log logging.Logger) *Store {
	if log == nil {
		log = logging.Discard()
	}
	s := &Store{dir: dir, log: log.With("component", "store")}
	if err := os.Remove(s.livePath()); err == nil {
		s.log.Warn(context.Background(), "removed stale working copy", "path", s.livePath())
	} else if !errors.Is(err, os.ErrNotExist) {
		s.log.Warn(context.Background(), "removing stale working copy", "err", err)
	}
	return s
}

// Initialized reports whether a sealed vault exists on disk.
func (s *Store) Initialized() bool {
	return fileExists(s.headerPath()) && fileExists(s.blobPath())
}

// Initialize creates a brand-new empty vault: derives the master key from the
// password, writes the header, and seals an empty schema-migrated database.
// Returns the derived master key so the caller can unlock immediately.
func (s *Store) Initialize(ctx context.Context, password []byte) ([]byte, error) {
	if s.Initialized() {
		return nil, ErrAlreadyInitialized
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}

	salt, err := cryptox.NewRandomSalt()
	if err != nil {
		return nil, err
	}
	params := cryptox.DefaultArgon2Params()
	masterKey := cryptox.DeriveMasterKey(password, salt, params)

	now := time.Now().UTC()
	hdr := Header{
		Version:   headerVersion,
		Salt:      salt,
		KDF:       params,
		Verifier:  cryptox.MakeVerifier(masterKey),
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Build the empty database through the normal migration path, then seal it.
	db, err := openDB(s.livePath())
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		os.Remove(s.livePath())
		return nil, err
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("close database: %w", err)
	}

	sealKey, err := cryptox.SubKey(masterKey, sealInfo)
	if err != nil {
		return nil, err
	}
	defer common.Wipe(sealKey)

	if err := sealLiveFile(s.livePath(), s.blobPath(), sealKey); err != nil {
		return nil, err
	}
	os.Remove(s.livePath())

	if err := saveHeader(s.headerPath(), hdr); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "vault initialized", "dir", s.dir)
	return masterKey, nil
}

// DeriveKey derives the master key for this vault from a password, using the
// salt and KDF parameters recorded in the header.
func (s *Store) DeriveKey(password []byte) ([]byte, error) {
	hdr, err := loadHeader(s.headerPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.ErrNotInitialized
		}
		return nil, err
	}
	return cryptox.DeriveMasterKey(password, hdr.Salt, hdr.KDF), nil
}

// Salt returns the KDF salt recorded in the header, shared with the server
// at registration so a fresh device can re-derive the same master key.
func (s *Store) Salt() ([]byte, error) {
	hdr, err := loadHeader(s.headerPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.ErrNotInitialized
		}
		return nil, err
	}
	return hdr.Salt, nil
}

// Unlock decrypts the sealed blob with the master key and opens the live
// connection. Unlocking an already-unlocked store is a no-op.
func (s *Store) Unlock(ctx context.Context, masterKey []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	hdr, err := loadHeader(s.headerPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return common.ErrNotInitialized
		}
		return err
	}

	if subtle.ConstantTimeCompare(hdr.Verifier, cryptox.MakeVerifier(masterKey)) == 0 {
		return common.ErrWrongKey
	}

	blob, err := os.ReadFile(s.blobPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return common.ErrNotInitialized
		}
		return fmt.Errorf("read vault blob: %w", err)
	}

	sealKey, err := cryptox.SubKey(masterKey, sealInfo)
	if err != nil {
		return err
	}

	plain, err := cryptox.Open(sealKey, blob, blobAAD)
	if err != nil {
		common.Wipe(sealKey)
		if errors.Is(err, cryptox.ErrDecryptFailed) {
			return common.ErrWrongKey
		}
		return err
	}

	if err := writeFileAtomic(s.livePath(), plain); err != nil {
		common.Wipe(sealKey)
		common.Wipe(plain)
		return err
	}
	common.Wipe(plain)

	db, err := openDB(s.livePath())
	if err != nil {
		common.Wipe(sealKey)
		os.Remove(s.livePath())
		return err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		common.Wipe(sealKey)
		os.Remove(s.livePath())
		return err
	}

	s.db = db
	s.sealKey = sealKey
	s.header = hdr

	s.ctxMu.Lock()
	s.unlockCtx, s.cancelUnlock = context.WithCancel(context.Background())
	s.ctxMu.Unlock()

	s.log.Info(ctx, "vault unlocked")
	return nil
}

// Lock drops the decrypted connection, removes the plaintext working copy,
// and wipes key material. Idempotent. In-flight credential flows observe the
// cancellation of UnlockContext and abort with ErrVaultNotUnlocked.
func (s *Store) Lock() {
	// Cancel before taking the write lock so in-flight readers see it.
	s.ctxMu.Lock()
	if s.cancelUnlock != nil {
		s.cancelUnlock()
		s.cancelUnlock = nil
	}
	s.ctxMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return
	}

	if err := s.db.Close(); err != nil {
		s.log.Warn(context.Background(), "closing vault connection", "err", err)
	}
	s.db = nil

	if err := os.Remove(s.livePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn(context.Background(), "removing working copy", "err", err)
	}

	common.Wipe(s.sealKey)
	s.sealKey = nil
	s.header = Header{}

	s.log.Info(context.Background(), "vault locked")
}

// IsUnlocked reports whether a live connection is open.
func (s *Store) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// UnlockContext returns a context cancelled when the vault locks. While the
// vault is locked it returns an already-cancelled context, so callers can
// uniformly abort with ErrVaultNotUnlocked.
func (s *Store) UnlockContext() context.Context {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	if s.unlockCtx == nil || s.cancelUnlock == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.unlockCtx
}

// OnCommit registers fn to run after every committed write transaction, once
// the write lock is released. Used to schedule the credential identity cache
// rebuild. Only one hook is supported.
func (s *Store) OnCommit(fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = fn
}

// View runs fn with shared (read) access to the decrypted database.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, db dbx.DBTX) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return common.ErrVaultNotUnlocked
	}
	return fn(ctx, s.db)
}

// WithTx runs fn inside a write transaction with exclusive access. On commit
// the database is re-serialized and re-sealed into the persisted blob, then
// the commit hook (if any) runs outside the lock.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	s.mu.Lock()

	if s.db == nil {
		s.mu.Unlock()
		return common.ErrVaultNotUnlocked
	}

	err := dbx.WithTx(ctx, s.db, nil, fn)
	if err == nil {
		err = s.resealLocked()
	}

	hook := s.commitHook
	s.mu.Unlock()

	if err == nil && hook != nil {
		hook(ctx)
	}
	return err
}

// DB returns the live database handle for read-side consumers that manage
// their own locking discipline (e.g. repositories bound once at unlock).
// Returns ErrVaultNotUnlocked when locked.
func (s *Store) DB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, common.ErrVaultNotUnlocked
	}
	return s.db, nil
}

// resealLocked exports the committed database file and seals it over the
// persisted blob. Caller holds the write lock.
func (s *Store) resealLocked() error {
	if err := sealLiveFile(s.livePath(), s.blobPath(), s.sealKey); err != nil {
		return err
	}

	s.header.UpdatedAt = time.Now().UTC()
	if err := saveHeader(s.headerPath(), s.header); err != nil {
		return err
	}
	return nil
}

// sealLiveFile reads the working database file, seals it, and atomically
// replaces the blob.
func sealLiveFile(livePath, blobPath string, sealKey []byte) error {
	raw, err := os.ReadFile(livePath)
	if err != nil {
		return fmt.Errorf("read working copy: %w", err)
	}
	defer common.Wipe(raw)

	sealed, err := cryptox.Seal(sealKey, raw, blobAAD)
	if err != nil {
		return err
	}
	return writeFileAtomic(blobPath, sealed)
}

func openDB(path string) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open vault database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping vault database: %w", err)
	}
	return db, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
