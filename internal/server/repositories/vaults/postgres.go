package vaults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/dmitrijs2005/passkeyvault/internal/dbx"
	"github.com/dmitrijs2005/passkeyvault/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.Vault, error) {
	return r.get(ctx, userID, false)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, userID string) (*models.Vault, error) {
	return r.get(ctx, userID, true)
}

func (r *PostgresRepository) get(ctx context.Context, userID string, forUpdate bool) (*models.Vault, error) {
	query := `
		SELECT user_id, revision, blob, blob_key, updated_at
		FROM vaults
		WHERE user_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	v := &models.Vault{}
	var blob []byte
	var blobKey sql.NullString
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&v.UserID, &v.Revision, &blob, &blobKey, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	v.Blob = blob
	v.BlobKey = blobKey.String
	return v, nil
}

func (r *PostgresRepository) GetRevision(ctx context.Context, userID string) (int64, error) {
	query := `
		SELECT revision
		FROM vaults
		WHERE user_id = $1
	`
	var revision int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&revision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return revision, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, v *models.Vault) error {
	query := `
		INSERT INTO vaults (user_id, revision, blob, blob_key, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			revision = EXCLUDED.revision,
			blob = EXCLUDED.blob,
			blob_key = EXCLUDED.blob_key,
			updated_at = EXCLUDED.updated_at
	`
	var blobKey sql.NullString
	if v.BlobKey != "" {
		blobKey = sql.NullString{String: v.BlobKey, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query,
		v.UserID, v.Revision, v.Blob, blobKey, v.UpdatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
