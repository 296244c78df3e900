// Package services contains application services for the passkey vault
// client. This file defines the passkey service: lookups used by the
// credential-provider flows and the transactional registration ceremonies
// (create, replace, merge).
package services

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/passkeyvault/internal/client/models"
	itemsrepo "github.com/dmitrijs2005/passkeyvault/internal/client/repositories/items"
	passkeysrepo "github.com/dmitrijs2005/passkeyvault/internal/client/repositories/passkeys"
	"github.com/dmitrijs2005/passkeyvault/internal/client/store"
	"github.com/dmitrijs2005/passkeyvault/internal/dbx"
)

// PasskeyService defines passkey operations for the credential-provider
// adapters and the CLI.
//
// Contract:
//   - Lookups require an unlocked store and return ErrVaultNotUnlocked otherwise.
//   - Multi-row mutations run inside one store transaction; a failure leaves
//     the vault untouched.
//   - Replace soft-deletes the old passkey and keeps the parent item, so
//     attachments and history stay reachable.
type PasskeyService interface {
	GetByCredentialID(ctx context.Context, credentialID []byte) (*models.Passkey, error)
	GetForRpID(ctx context.Context, rpID string) ([]models.Passkey, error)
	GetWithCredentialInfo(ctx context.Context, rpID string, userName *string, userHandle []byte) ([]models.PasskeyWithItem, error)
	GetAllWithItems(ctx context.Context) ([]models.PasskeyWithItem, error)
	CreateItemWithPasskey(ctx context.Context, itemName string, logoURL *string, passkey *models.Passkey) (*models.Item, error)
	Replace(ctx context.Context, oldPasskeyID string, passkey *models.Passkey, itemName string, logoURL *string) error
	AddPasskeyToExistingItem(ctx context.Context, itemID string, passkey *models.Passkey) error
	Delete(ctx context.Context, passkeyID string) error
}

type passkeyService struct {
	store *store.Store
	now   func() time.Time
}

// NewPasskeyService constructs a PasskeyService over the given store.
func NewPasskeyService(st *store.Store) PasskeyService {
	return &passkeyService{store: st, now: time.Now}
}

func (s *passkeyService) GetByCredentialID(ctx context.Context, credentialID []byte) (*models.Passkey, error) {
	var result *models.Passkey
	err := s.store.View(ctx, func(ctx context.Context, db dbx.DBTX) error {
		pk, err := passkeysrepo.NewSQLiteRepository(db).GetByCredentialID(ctx, credentialID)
		if err != nil {
			return err
		}
		result = pk
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *passkeyService) GetForRpID(ctx context.Context, rpID string) ([]models.Passkey, error) {
	var result []models.Passkey
	err := s.store.View(ctx, func(ctx context.Context, db dbx.DBTX) error {
		pks, err := passkeysrepo.NewSQLiteRepository(db).GetForRpID(ctx, rpID)
		if err != nil {
			return err
		}
		result = pks
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetWithCredentialInfo loads the candidate passkeys for an rp in one joined
// query and filters by the optional user identifiers in memory. userHandle is
// compared byte for byte against the stored handle. Registration flows use
// this to detect an existing passkey for the same account.
func (s *passkeyService) GetWithCredentialInfo(ctx context.Context, rpID string, userName *string, userHandle []byte) ([]models.PasskeyWithItem, error) {
	all, err := s.GetAllWithItems(ctx)
	if err != nil {
		return nil, err
	}

	var result []models.PasskeyWithItem
	for _, pw := range all {
		if pw.RpID != rpID {
			continue
		}
		if userName != nil && pw.UserName != *userName {
			continue
		}
		if userHandle != nil && !bytes.Equal(pw.UserHandle, userHandle) {
			continue
		}
		result = append(result, pw)
	}
	return result, nil
}

func (s *passkeyService) GetAllWithItems(ctx context.Context) ([]models.PasskeyWithItem, error) {
	var result []models.PasskeyWithItem
	err := s.store.View(ctx, func(ctx context.Context, db dbx.DBTX) error {
		pws, err := passkeysrepo.NewSQLiteRepository(db).GetAllWithItems(ctx)
		if err != nil {
			return err
		}
		result = pws
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateItemWithPasskey creates a fresh login item and attaches the passkey
// to it atomically. Used for registrations with no prior credential.
func (s *passkeyService) CreateItemWithPasskey(ctx context.Context, itemName string, logoURL *string, passkey *models.Passkey) (*models.Item, error) {
	now := s.now().UTC().Truncate(time.Second)

	item := &models.Item{
		ID:        uuid.NewString(),
		Name:      itemName,
		ItemType:  models.ItemTypeLogin,
		LogoURL:   logoURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stampPasskey(passkey, item.ID, now)

	err := s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := itemsrepo.NewSQLiteRepository(tx).Insert(ctx, item); err != nil {
			return err
		}
		return passkeysrepo.NewSQLiteRepository(tx).Insert(ctx, passkey)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Replace soft-deletes the old passkey and inserts the new one under the same
// parent item. The item's display name and logo are refreshed alongside, the
// relying party's metadata may have changed since the original registration.
func (s *passkeyService) Replace(ctx context.Context, oldPasskeyID string, passkey *models.Passkey, itemName string, logoURL *string) error {
	now := s.now().UTC().Truncate(time.Second)

	return s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		pkRepo := passkeysrepo.NewSQLiteRepository(tx)

		old, err := pkRepo.GetByID(ctx, oldPasskeyID)
		if err != nil {
			return err
		}
		if err := pkRepo.SoftDelete(ctx, old.ID, now); err != nil {
			return err
		}

		stampPasskey(passkey, old.ItemID, now)
		if err := pkRepo.Insert(ctx, passkey); err != nil {
			return err
		}

		return itemsrepo.NewSQLiteRepository(tx).UpdateDisplay(ctx, old.ItemID, itemName, logoURL, now)
	})
}

// AddPasskeyToExistingItem merges a new passkey onto an item that has no
// active one yet.
func (s *passkeyService) AddPasskeyToExistingItem(ctx context.Context, itemID string, passkey *models.Passkey) error {
	now := s.now().UTC().Truncate(time.Second)

	return s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := itemsrepo.NewSQLiteRepository(tx).GetByID(ctx, itemID); err != nil {
			return err
		}
		stampPasskey(passkey, itemID, now)
		return passkeysrepo.NewSQLiteRepository(tx).Insert(ctx, passkey)
	})
}

// Delete soft-deletes a passkey. The parent item stays, only the credential
// becomes unusable.
func (s *passkeyService) Delete(ctx context.Context, passkeyID string) error {
	now := s.now().UTC().Truncate(time.Second)

	return s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return passkeysrepo.NewSQLiteRepository(tx).SoftDelete(ctx, passkeyID, now)
	})
}

func stampPasskey(p *models.Passkey, itemID string, now time.Time) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.ItemID = itemID
	p.CreatedAt = now
	p.UpdatedAt = now
}
