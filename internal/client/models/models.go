// Package models defines the vault's client-side data model: items and the
// passkeys attached to them.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ItemType classifies a vault item.
type ItemType string

const (
	// ItemTypeLogin is the only type the passkey subsystem creates. Other
	// item kinds live in their own modules and never reach these tables.
	ItemTypeLogin ItemType = "login"
)

// Item is a vault entry owning zero-or-one passkey. Deletion is always a
// soft delete so trash restore and sync tombstones keep working.
type Item struct {
	ID        string // UUID
	Name      string
	ItemType  ItemType
	FolderID  *string
	LogoURL   *string
	CreatedAt time.Time
	UpdatedAt time.Time
	Deleted   bool
	DeletedAt *time.Time
}

// Passkey is a WebAuthn credential stored in the vault. The row id doubles as
// the credential id: the UUID's 16 raw bytes are what the relying party sees.
// Key material is persisted JWK-encoded.
type Passkey struct {
	ID            string // UUID, credential id source
	ItemID        string // parent item
	RpID          string
	UserHandle    []byte // nil when the RP supplied none
	UserName      string
	DisplayName   string
	PublicKeyJWK  []byte
	PrivateKeyJWK []byte
	PRFSecret     []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Deleted       bool
}

// CredentialID returns the 16 raw bytes of the passkey's UUID.
func (p *Passkey) CredentialID() ([]byte, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("passkey id is not a uuid: %w", err)
	}
	b := [16]byte(id)
	return b[:], nil
}

// CredentialIDToUUID converts a raw 16-byte credential id back into the UUID
// string used as the passkey primary key.
func CredentialIDToUUID(credentialID []byte) (string, error) {
	id, err := uuid.FromBytes(credentialID)
	if err != nil {
		return "", fmt.Errorf("credential id is not a uuid: %w", err)
	}
	return id.String(), nil
}

// PasskeyWithItem joins a passkey with the parent item fields needed for
// pickers and the identity cache, loaded in one query to avoid N+1 reads.
type PasskeyWithItem struct {
	Passkey
	ItemName    string
	ItemLogoURL *string
}
