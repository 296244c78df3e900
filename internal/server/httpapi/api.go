// Package httpapi exposes the server's JSON API.
//
// Endpoints:
//
//	POST /api/auth/register   {username, salt, verifier}
//	GET  /api/auth/salt       ?username=...
//	POST /api/auth/login      {username, verifier} -> {access_token, refresh_token}
//	POST /api/auth/refresh    {refresh_token} -> {access_token, refresh_token}
//	POST /api/auth/logout     {refresh_token}
//	GET  /api/ping
//	GET  /api/vault/revision  -> {revision}            (authenticated)
//	GET  /api/vault           -> raw image, revision in X-Vault-Revision
//	PUT  /api/vault           raw image, base revision in X-Vault-Revision;
//	                          stale base -> 409; X-Vault-Force overwrites,
//	                          keeping the new revision above the one claimed
//
// Errors are returned as {"error": "..."}. A 401 whose error text is exactly
// the expired-token message tells clients to refresh and retry.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/passkeyvault/internal/logging"
	"github.com/dmitrijs2005/passkeyvault/internal/server/models"
	"github.com/dmitrijs2005/passkeyvault/internal/server/services"
)

// UserService is the account-facing surface the API needs.
type UserService interface {
	Register(ctx context.Context, username string, salt, verifier []byte) (*models.User, error)
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifier []byte) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Authorize(accessToken string) (string, error)
}

// VaultService is the vault-facing surface the API needs.
type VaultService interface {
	GetRevision(ctx context.Context, userID string) (int64, error)
	Get(ctx context.Context, userID string) ([]byte, int64, error)
	Put(ctx context.Context, userID string, image []byte, baseRevision int64, force bool) (int64, error)
}

// API wires the services into an http.Handler.
type API struct {
	users  UserService
	vaults VaultService
	log    logging.Logger
}

func New(users UserService, vaults VaultService, log logging.Logger) *API {
	if log == nil {
		log = logging.Discard()
	}
	return &API{users: users, vaults: vaults, log: log.With("component", "httpapi")}
}

// Routes returns the API's handler.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", a.handleRegister)
	mux.HandleFunc("GET /api/auth/salt", a.handleGetSalt)
	mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", a.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", a.handleLogout)
	mux.HandleFunc("GET /api/ping", a.handlePing)

	mux.Handle("GET /api/vault/revision", a.authenticated(a.handleGetRevision))
	mux.Handle("GET /api/vault", a.authenticated(a.handleGetVault))
	mux.Handle("PUT /api/vault", a.authenticated(a.handlePutVault))

	return mux
}
