package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/passkeyvault/internal/client/models"
)

// List prints every active passkey with its parent item.
func (a *App) List(ctx context.Context) error {
	passkeys, err := a.passkeys.GetAllWithItems(ctx)
	if err != nil {
		printlnFn("List failed: " + err.Error())
		return err
	}

	if len(passkeys) == 0 {
		printlnFn("No passkeys stored.")
		return nil
	}

	for _, pw := range passkeys {
		printlnFn(fmt.Sprintf("%s  %-24s %-24s %s", pw.ID, pw.ItemName, pw.RpID, pw.UserName))
	}
	return nil
}

// Show prints the details of one passkey, looked up by id or id prefix.
func (a *App) Show(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Passkey id", os.Stdout)
	if err != nil {
		return err
	}

	pw, err := a.findPasskey(ctx, id)
	if err != nil {
		printlnFn(err.Error())
		return err
	}

	printlnFn("Item:         " + pw.ItemName)
	printlnFn("Relying party: " + pw.RpID)
	printlnFn("User:         " + pw.UserName)
	printlnFn("Display name: " + pw.DisplayName)
	printlnFn("Created:      " + pw.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

// Delete soft-deletes a passkey after confirmation.
func (a *App) Delete(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Passkey id", os.Stdout)
	if err != nil {
		return err
	}

	pw, err := a.findPasskey(ctx, id)
	if err != nil {
		printlnFn(err.Error())
		return err
	}

	confirm, err := GetSimpleText(a.reader,
		fmt.Sprintf("Delete passkey for %s (%s)? [y/N]", pw.RpID, pw.UserName), os.Stdout)
	if err != nil {
		return err
	}
	if !strings.EqualFold(confirm, "y") {
		printlnFn("Cancelled.")
		return nil
	}

	if err := a.passkeys.Delete(ctx, pw.ID); err != nil {
		printlnFn("Delete failed: " + err.Error())
		return err
	}
	printlnFn("Deleted.")
	return nil
}

func (a *App) findPasskey(ctx context.Context, id string) (*models.PasskeyWithItem, error) {
	if id == "" {
		return nil, fmt.Errorf("passkey id required")
	}

	all, err := a.passkeys.GetAllWithItems(ctx)
	if err != nil {
		return nil, err
	}

	var match *models.PasskeyWithItem
	for i := range all {
		if !strings.HasPrefix(all[i].ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("id prefix %q is ambiguous", id)
		}
		match = &all[i]
	}
	if match == nil {
		return nil, fmt.Errorf("no passkey with id %q", id)
	}
	return match, nil
}
