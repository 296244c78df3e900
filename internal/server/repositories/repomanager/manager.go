// Package repomanager vends repository implementations bound to a database
// handle, so services can run the same repository against *sql.DB or an open
// transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/passkeyvault/internal/dbx"
	"github.com/dmitrijs2005/passkeyvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/passkeyvault/internal/server/repositories/users"
	"github.com/dmitrijs2005/passkeyvault/internal/server/repositories/vaults"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Vaults(db dbx.DBTX) vaults.Repository
}
