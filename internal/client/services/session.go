package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/passkeyvault/internal/client/remote"
	"github.com/dmitrijs2005/passkeyvault/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/passkeyvault/internal/client/store"
	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/dmitrijs2005/passkeyvault/internal/cryptox"
	"github.com/dmitrijs2005/passkeyvault/internal/dbx"
)

// authKeyInfo derives the server-facing auth key from the master key, so the
// value sent to the server can never open the vault.
const authKeyInfo = "passkeyvault.auth"

// SessionService handles account and unlock flows.
//
// Contract:
//   - Register creates the account remotely from a locally initialized vault.
//   - Login authenticates online, fetching the vault for a fresh device.
//   - OfflineUnlock verifies the password against local data only.
//   - Logout locks the vault and drops session tokens; local data survives.
type SessionService interface {
	Register(ctx context.Context, username string, password []byte) error
	Login(ctx context.Context, username string, password []byte) error
	OfflineUnlock(ctx context.Context, password []byte) error
	Logout(ctx context.Context)
	Username(ctx context.Context) (string, error)
}

type sessionService struct {
	store  *store.Store
	remote remote.Client
}

// NewSessionService constructs a SessionService over the store and the
// remote endpoint.
func NewSessionService(st *store.Store, rc remote.Client) SessionService {
	return &sessionService{store: st, remote: rc}
}

// Register initializes the local vault when needed and creates the server
// account with the vault's salt and a derived auth verifier. The password
// never leaves the device.
func (s *sessionService) Register(ctx context.Context, username string, password []byte) error {
	var masterKey []byte
	if s.store.Initialized() {
		var err error
		masterKey, err = s.store.DeriveKey(password)
		if err != nil {
			return err
		}
	} else {
		var err error
		masterKey, err = s.store.Initialize(ctx, password)
		if err != nil {
			return err
		}
	}
	defer common.Wipe(masterKey)

	authKey, err := cryptox.SubKey(masterKey, authKeyInfo)
	if err != nil {
		return err
	}
	defer common.Wipe(authKey)

	salt, err := s.store.Salt()
	if err != nil {
		return err
	}
	if err := s.remote.Register(ctx, username, salt, cryptox.MakeVerifier(authKey)); err != nil {
		return fmt.Errorf("register error: %w", err)
	}

	if err := s.store.Unlock(ctx, masterKey); err != nil {
		return err
	}
	defer s.store.Lock()
	return s.saveUsername(ctx, username)
}

// Login authenticates against the server. On a device without a vault it
// derives the key from the server-held salt so the downloaded vault can be
// opened with the same password.
func (s *sessionService) Login(ctx context.Context, username string, password []byte) error {
	var masterKey []byte
	if s.store.Initialized() {
		var err error
		masterKey, err = s.store.DeriveKey(password)
		if err != nil {
			return err
		}
	} else {
		salt, err := s.remote.GetSalt(ctx, username)
		if err != nil {
			return fmt.Errorf("get salt error: %w", err)
		}
		masterKey = cryptox.DeriveMasterKey(password, salt, cryptox.DefaultArgon2Params())
	}
	defer common.Wipe(masterKey)

	authKey, err := cryptox.SubKey(masterKey, authKeyInfo)
	if err != nil {
		return err
	}
	defer common.Wipe(authKey)

	if err := s.remote.Login(ctx, username, cryptox.MakeVerifier(authKey)); err != nil {
		return fmt.Errorf("login error: %w", err)
	}

	if !s.store.Initialized() {
		// fresh device: pull the vault before unlocking
		image, _, err := s.remote.DownloadVault(ctx)
		if err != nil {
			return fmt.Errorf("fetch vault error: %w", err)
		}
		if err := s.store.ImportImage(image); err != nil {
			return err
		}
	}

	if err := s.store.Unlock(ctx, masterKey); err != nil {
		return err
	}
	return s.saveUsername(ctx, username)
}

// OfflineUnlock verifies the password against the local header and opens the
// vault without any network traffic.
func (s *sessionService) OfflineUnlock(ctx context.Context, password []byte) error {
	if !s.store.Initialized() {
		return common.ErrNotInitialized
	}
	masterKey, err := s.store.DeriveKey(password)
	if err != nil {
		return err
	}
	defer common.Wipe(masterKey)
	return s.store.Unlock(ctx, masterKey)
}

func (s *sessionService) Logout(ctx context.Context) {
	s.remote.Logout()
	s.store.Lock()
}

// Username returns the account name recorded in the vault metadata.
func (s *sessionService) Username(ctx context.Context) (string, error) {
	var username string
	err := s.store.View(ctx, func(ctx context.Context, db dbx.DBTX) error {
		v, err := metadata.NewSQLiteRepository(db).Get(ctx, metadata.KeyUsername)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		username = string(v)
		return nil
	})
	return username, err
}

// saveUsername records the account inside the vault so a restored device
// knows which account it belongs to.
func (s *sessionService) saveUsername(ctx context.Context, username string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).Set(ctx, metadata.KeyUsername, []byte(username))
	})
}
