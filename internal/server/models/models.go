// Package models defines the server-side data model: accounts, refresh
// tokens, and the vault blobs the clients sync.
package models

import "time"

// User is a registered account. The server stores only the KDF salt and an
// auth verifier; it can never derive the vault key.
type User struct {
	ID       string
	Username string
	Salt     []byte
	Verifier []byte
}

// RefreshToken is an opaque, single-use token for renewing access tokens.
type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Vault is one account's uploaded vault. Exactly one of Blob and BlobKey is
// set: small deployments keep the image inline, S3-backed ones store a key.
type Vault struct {
	UserID    string
	Revision  int64
	Blob      []byte
	BlobKey   string
	UpdatedAt time.Time
}
