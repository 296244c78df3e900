// Package common defines shared constants and sentinel errors used across
// client and server layers of PasskeyVault. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Vault store errors.
	ErrVaultNotUnlocked = errors.New("vault not unlocked")
	ErrNotInitialized   = errors.New("vault not initialized")
	ErrWrongKey         = errors.New("wrong key")

	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrPasskeyNotFound = errors.New("passkey not found")
	ErrItemNotFound    = errors.New("item not found")

	// WebAuthn request validation.
	ErrMalformedRequest = errors.New("malformed request")

	// Sync protocol errors. ErrSyncOffline means the server was unreachable;
	// ErrSyncConflict means the server revision disagrees with ours.
	ErrSyncOffline  = errors.New("sync: server unreachable")
	ErrSyncConflict = errors.New("sync: revision conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
