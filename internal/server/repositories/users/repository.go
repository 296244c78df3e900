// Package users persists registered accounts.
package users

import (
	"context"

	"github.com/dmitrijs2005/passkeyvault/internal/server/models"
)

type Repository interface {
	// Create inserts a new account and returns it with the generated ID.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByUsername looks up an account by username. Returns
	// common.ErrorNotFound when no such account exists.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}
