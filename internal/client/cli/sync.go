package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/passkeyvault/internal/client/syncer"
)

// Sync runs one sync cycle and reports the outcome.
func (a *App) Sync(ctx context.Context) error {
	status, err := a.syncer.Sync(ctx)
	if err != nil {
		printlnFn("Sync failed: " + err.Error())
		return err
	}

	switch status.State {
	case syncer.StateSynced:
		printlnFn(fmt.Sprintf("In sync at revision %d.", status.ServerRevision))
	case syncer.StateRemoteAhead:
		printlnFn("Server has newer data; it will be applied when the vault is locked.")
	case syncer.StateConflictRollback:
		printlnFn("Server had stale data; local vault re-uploaded.")
	case syncer.StateOffline:
		printlnFn("Server unreachable; working offline.")
	default:
		printlnFn(string(status.State))
	}
	return nil
}

// Status reports connectivity and vault state.
func (a *App) Status(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
	defer cancel()

	online := "online"
	if err := a.remote.Ping(ctx); err != nil {
		online = "offline"
	}

	vault := "locked"
	if a.store.IsUnlocked() {
		vault = "unlocked"
	}
	if !a.store.Initialized() {
		vault = "not initialized"
	}

	printlnFn(fmt.Sprintf("Server: %s (%s)", online, a.config.ServerEndpointAddr))
	printlnFn("Vault:  " + vault)
	if username := a.syncer.LastUsername(); username != "" {
		printlnFn("Account: " + username)
	}
	return nil
}
