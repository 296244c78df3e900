// Package vaults persists uploaded vault images and their revisions.
package vaults

import (
	"context"

	"github.com/dmitrijs2005/passkeyvault/internal/server/models"
)

type Repository interface {
	// Get returns the vault row for userID. Returns common.ErrorNotFound
	// when the account has never uploaded a vault.
	Get(ctx context.Context, userID string) (*models.Vault, error)

	// GetForUpdate is Get with a row lock, for use inside a transaction
	// that is about to write the row.
	GetForUpdate(ctx context.Context, userID string) (*models.Vault, error)

	// GetRevision returns just the current revision for userID. Returns
	// common.ErrorNotFound when no vault exists.
	GetRevision(ctx context.Context, userID string) (int64, error)

	// Upsert inserts or replaces the vault row for v.UserID.
	Upsert(ctx context.Context, v *models.Vault) error
}
