package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/dmitrijs2005/passkeyvault/internal/dbx"
	"github.com/dmitrijs2005/passkeyvault/internal/server/models"
	"github.com/dmitrijs2005/passkeyvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/passkeyvault/internal/server/storage"
)

// VaultService stores and serves the per-account vault image. The image is an
// opaque encrypted blob; the server only tracks its revision.
//
// Revisions start at 1 on the first upload and grow on every accepted upload.
// A conditional upload whose base revision does not match the current one
// fails with common.ErrSyncConflict. A forced upload may jump the revision
// past the client's last-synced one after a restore from backup.
type VaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       storage.BlobStore
}

// NewVaultService builds a VaultService. blobs may be nil, in which case
// images are stored inline in the database.
func NewVaultService(db *sql.DB, m repomanager.RepositoryManager, blobs storage.BlobStore) *VaultService {
	return &VaultService{db: db, repomanager: m, blobs: blobs}
}

// GetRevision returns the current revision for userID, or 0 when the account
// has never uploaded a vault.
func (s *VaultService) GetRevision(ctx context.Context, userID string) (int64, error) {
	rev, err := s.repomanager.Vaults(s.db).GetRevision(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, nil
		}
		return 0, common.ErrorInternal
	}
	return rev, nil
}

// Get returns the stored vault image and its revision. Returns
// common.ErrorNotFound when no vault has been uploaded.
func (s *VaultService) Get(ctx context.Context, userID string) ([]byte, int64, error) {
	v, err := s.repomanager.Vaults(s.db).Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, 0, common.ErrorNotFound
		}
		return nil, 0, common.ErrorInternal
	}

	if v.BlobKey != "" {
		if s.blobs == nil {
			return nil, 0, fmt.Errorf("%w: vault stored externally but no blob store configured", common.ErrorInternal)
		}
		blob, err := s.blobs.Get(ctx, v.BlobKey)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", common.ErrorInternal, err)
		}
		return blob, v.Revision, nil
	}

	return v.Blob, v.Revision, nil
}

// Put stores a new vault image. When force is false, baseRevision must equal
// the current revision or the upload is rejected with common.ErrSyncConflict.
// When force is true the upload always succeeds and baseRevision is the
// client's last-synced revision; the new revision lands above both it and the
// current one, so revisions stay monotonic for every device that has synced.
// The new revision is returned.
func (s *VaultService) Put(ctx context.Context, userID string, image []byte, baseRevision int64, force bool) (int64, error) {
	var newRevision int64

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Vaults(tx)

		var current int64
		v, err := repo.GetForUpdate(ctx, userID)
		switch {
		case err == nil:
			current = v.Revision
		case errors.Is(err, common.ErrorNotFound):
			current = 0
		default:
			return common.ErrorInternal
		}

		if !force && baseRevision != current {
			return common.ErrSyncConflict
		}

		newRevision = current + 1
		if force && baseRevision >= newRevision {
			newRevision = baseRevision + 1
		}

		next := &models.Vault{
			UserID:    userID,
			Revision:  newRevision,
			UpdatedAt: time.Now(),
		}
		if s.blobs != nil {
			// Stable per-user key, so each upload overwrites the
			// previous object and nothing is orphaned.
			key := "vaults/" + userID
			if err := s.blobs.Put(ctx, key, image); err != nil {
				return fmt.Errorf("%w: %v", common.ErrorInternal, err)
			}
			next.BlobKey = key
		} else {
			next.Blob = image
		}

		return repo.Upsert(ctx, next)
	})
	if err != nil {
		return 0, err
	}
	return newRevision, nil
}
