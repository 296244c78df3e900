// Package cli implements the interactive passkey vault client: a small REPL
// over the session, passkey, and sync services.
package cli

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/passkeyvault/internal/client/config"
	"github.com/dmitrijs2005/passkeyvault/internal/client/identity"
	"github.com/dmitrijs2005/passkeyvault/internal/client/provider"
	"github.com/dmitrijs2005/passkeyvault/internal/client/remote"
	"github.com/dmitrijs2005/passkeyvault/internal/client/services"
	"github.com/dmitrijs2005/passkeyvault/internal/client/store"
	"github.com/dmitrijs2005/passkeyvault/internal/client/syncer"
	"github.com/dmitrijs2005/passkeyvault/internal/logging"
)

const backgroundSyncTimeout = 30 * time.Second

type App struct {
	config   *config.Config
	log      logging.Logger
	store    *store.Store
	remote   remote.Client
	session  services.SessionService
	passkeys services.PasskeyService
	cache    *identity.Cache
	syncer   *syncer.Syncer
	provider *provider.Provider
	reader   *bufio.Reader
}

// NewApp wires the client together. Local writes mark the sync state dirty,
// refresh the identity cache, and kick off a background sync.
func NewApp(cfg *config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.VaultDir, 0o700); err != nil {
		return nil, err
	}

	log := logging.NewJSON(os.Stderr).With("component", "cli")

	st := store.New(cfg.VaultDir, log)
	rc := remote.NewHTTPClient(cfg.ServerEndpointAddr, &http.Client{Timeout: cfg.RequestTimeout}, log)
	cache := identity.NewCache(cfg.VaultDir, log)
	passkeys := services.NewPasskeyService(st)
	prov := provider.New(st, passkeys, cache, log)
	sync := syncer.New(st, rc, cfg.VaultDir, log,
		syncer.WithAuxTimeout(cfg.RequestTimeout),
		syncer.WithRetryBudget(cfg.SyncRetryAttempts, 500*time.Millisecond))

	app := &App{
		config:   cfg,
		log:      log,
		store:    st,
		remote:   rc,
		session:  services.NewSessionService(st, rc),
		passkeys: passkeys,
		cache:    cache,
		syncer:   sync,
		provider: prov,
		reader:   bufio.NewReader(os.Stdin),
	}

	st.OnCommit(func(ctx context.Context) {
		if err := prov.RefreshIdentityCache(ctx); err != nil {
			log.Warn(ctx, "identity cache refresh failed", "error", err)
		}
		sync.MarkDirty()
		go app.backgroundSync()
	})

	return app, nil
}

func (a *App) backgroundSync() {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundSyncTimeout)
	defer cancel()
	if _, err := a.syncer.Sync(ctx); err != nil {
		a.log.Warn(ctx, "background sync failed", "error", err)
	}
}

// Run starts the REPL and locks the vault on exit.
func (a *App) Run(ctx context.Context) {
	defer a.store.Lock()
	defer a.remote.Close()
	runREPL(ctx, a, a.status, bufio.NewScanner(os.Stdin))
}

func (a *App) isUnlocked() bool {
	return a.store.IsUnlocked()
}
