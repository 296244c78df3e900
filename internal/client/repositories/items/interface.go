package items

import (
	"context"
	"time"

	"github.com/dmitrijs2005/passkeyvault/internal/client/models"
)

// Repository describes row-level operations on vault items. Implementations
// are backed by the decrypted SQLite database; transactional composition is
// the caller's responsibility via the store's transaction wrapper.
type Repository interface {
	// Insert adds a new item row.
	Insert(ctx context.Context, item *models.Item) error

	// GetByID returns a non-deleted item by id.
	GetByID(ctx context.Context, id string) (*models.Item, error)

	// UpdateDisplay updates the item's name and logo, typically as a side
	// effect of passkey replacement.
	UpdateDisplay(ctx context.Context, id, name string, logoURL *string, now time.Time) error

	// SoftDelete marks an item deleted without removing the row.
	SoftDelete(ctx context.Context, id string, now time.Time) error
}
