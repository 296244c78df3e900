package passkeys

import (
	"context"
	"time"

	"github.com/dmitrijs2005/passkeyvault/internal/client/models"
)

// Repository describes row-level operations on passkeys. Multi-row ceremonies
// (create-with-item, replace) are composed by the passkey service inside the
// store's transaction wrapper.
type Repository interface {
	// Insert adds a new passkey row. Uniqueness policy is the caller's job.
	Insert(ctx context.Context, p *models.Passkey) error

	// GetByID returns the first non-deleted passkey with this id.
	GetByID(ctx context.Context, id string) (*models.Passkey, error)

	// GetByCredentialID resolves the raw 16-byte credential id to its UUID
	// form and looks the passkey up by primary key.
	GetByCredentialID(ctx context.Context, credentialID []byte) (*models.Passkey, error)

	// GetForRpID returns non-deleted passkeys with an exact, case-sensitive
	// RpID match, newest first.
	GetForRpID(ctx context.Context, rpID string) ([]models.Passkey, error)

	// GetForItem returns the non-deleted passkeys owned by an item.
	GetForItem(ctx context.Context, itemID string) ([]models.Passkey, error)

	// GetAllWithItems returns every non-deleted passkey joined with its
	// parent item in a single query.
	GetAllWithItems(ctx context.Context) ([]models.PasskeyWithItem, error)

	// SoftDelete marks a passkey deleted without removing the row.
	SoftDelete(ctx context.Context, id string, now time.Time) error
}
