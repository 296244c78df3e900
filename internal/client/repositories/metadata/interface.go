package metadata

import "context"

// KeyUsername is the well-known metadata key for the account name the vault
// belongs to.
const KeyUsername = "username"

// Repository is a typed key-value store over the vault's metadata table.
type Repository interface {
	// Get returns the value stored under key, or common.ErrorNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
