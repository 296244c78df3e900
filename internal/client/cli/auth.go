package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

// Register creates a server account and a fresh local vault.
func (a *App) Register(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.Wipe(password)

	if err := a.session.Register(ctx, username, password); err != nil {
		printlnFn("Registration failed: " + err.Error())
		return err
	}

	a.syncer.NoteUsername(username)
	printlnFn("Registered and unlocked.")
	return a.Sync(ctx)
}

// Login authenticates against the server and unlocks the vault, downloading
// it first on a fresh device.
func (a *App) Login(ctx context.Context) error {
	prompt := "Username"
	if last := a.syncer.LastUsername(); last != "" {
		prompt = fmt.Sprintf("Username (default %s)", last)
	}
	username, err := GetSimpleText(a.reader, prompt, os.Stdout)
	if err != nil {
		return err
	}
	if username == "" {
		username = a.syncer.LastUsername()
	}

	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.Wipe(password)

	if err := a.session.Login(ctx, username, password); err != nil {
		switch {
		case errors.Is(err, common.ErrorUnauthorized):
			printlnFn("Invalid username or password.")
		case errors.Is(err, common.ErrSyncOffline):
			printlnFn("Server unreachable. Try 'unlock' for offline access.")
		default:
			printlnFn("Login failed: " + err.Error())
		}
		return err
	}

	a.syncer.NoteUsername(username)
	printlnFn("Logged in.")
	return a.Sync(ctx)
}

// Unlock opens the local vault without contacting the server.
func (a *App) Unlock(ctx context.Context) error {
	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.Wipe(password)

	if err := a.session.OfflineUnlock(ctx, password); err != nil {
		switch {
		case errors.Is(err, common.ErrNotInitialized):
			printlnFn("No local vault. Use 'register' or 'login' first.")
		case errors.Is(err, common.ErrWrongKey):
			printlnFn("Wrong password.")
		default:
			printlnFn("Unlock failed: " + err.Error())
		}
		return err
	}

	printlnFn("Vault unlocked (offline).")
	return nil
}

// Logout locks the vault and drops the server session. The sealed vault and
// the identity cache stay on disk.
func (a *App) Logout(ctx context.Context) error {
	a.session.Logout(ctx)
	printlnFn("Logged out.")
	return nil
}

func (a *App) status() string {
	s := "locked"
	if a.store.IsUnlocked() {
		s = "unlocked"
	}
	if username := a.syncer.LastUsername(); username != "" {
		s = username + " " + s
	}
	return "(" + s + ")"
}
