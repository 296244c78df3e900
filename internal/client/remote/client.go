// Package remote implements the sync endpoint client: account operations
// plus the revision/vault transfer calls the sync protocol is built on.
package remote

import "context"

// Client is the remote vault endpoint.
//
// Contract:
//   - Network failures map to common.ErrSyncOffline.
//   - Rejected credentials and forced logout map to common.ErrorUnauthorized.
//   - Upload with a stale base revision maps to common.ErrSyncConflict.
//   - All methods honor context cancellation.
type Client interface {
	// Register creates an account. The server stores the salt and the
	// verifier; the password itself never leaves the device.
	Register(ctx context.Context, username string, salt, verifier []byte) error

	// GetSalt fetches the KDF salt for a username prior to login.
	GetSalt(ctx context.Context, username string) ([]byte, error)

	// Login authenticates with the derived verifier and stores the issued
	// token pair on the client.
	Login(ctx context.Context, username string, verifier []byte) error

	// Logout drops the stored token pair.
	Logout()

	// CurrentRevision returns the server's vault revision. Zero means the
	// server holds no vault yet.
	CurrentRevision(ctx context.Context) (int64, error)

	// DownloadVault fetches the full vault image and its revision. The
	// image bytes are opaque to the transport.
	DownloadVault(ctx context.Context) ([]byte, int64, error)

	// UploadVault replaces the server's vault. baseRevision is the revision
	// the upload is based on; the server rejects a stale base with
	// common.ErrSyncConflict. Returns the new server revision.
	UploadVault(ctx context.Context, image []byte, baseRevision int64) (int64, error)

	// ForceUploadVault overwrites the server's vault regardless of its
	// current revision, used by rollback recovery. claimedRevision is the
	// client's last-synced revision; the returned revision is always above
	// it, so a device that already saw claimedRevision never mistakes the
	// repaired server for a rollback.
	ForceUploadVault(ctx context.Context, image []byte, claimedRevision int64) (int64, error)

	// Ping checks endpoint liveness.
	Ping(ctx context.Context) error

	Close() error
}
