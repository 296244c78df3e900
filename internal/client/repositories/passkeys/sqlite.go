package passkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/passkeyvault/internal/client/models"
	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/dmitrijs2005/passkeyvault/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const passkeyColumns = `id, item_id, rp_id, user_handle, user_name, display_name,
	public_key, private_key, prf_secret, created_at, updated_at`

func (r *SQLiteRepository) Insert(ctx context.Context, p *models.Passkey) error {
	query := `INSERT INTO passkeys (id, item_id, rp_id, user_handle, user_name, display_name,
			public_key, private_key, prf_secret, created_at, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.ItemID, p.RpID, p.UserHandle, p.UserName, p.DisplayName,
		p.PublicKeyJWK, p.PrivateKeyJWK, p.PRFSecret,
		p.CreatedAt.Unix(), p.UpdatedAt.Unix(), p.Deleted)
	if err != nil {
		return fmt.Errorf("failed to insert passkey: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Passkey, error) {
	query := `SELECT ` + passkeyColumns + ` FROM passkeys WHERE id = ? AND deleted = 0`

	row := r.db.QueryRowContext(ctx, query, id)
	p, err := scanPasskey(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrPasskeyNotFound
		}
		return nil, fmt.Errorf("failed to select passkey: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) GetByCredentialID(ctx context.Context, credentialID []byte) (*models.Passkey, error) {
	id, err := models.CredentialIDToUUID(credentialID)
	if err != nil {
		return nil, common.ErrPasskeyNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *SQLiteRepository) GetForRpID(ctx context.Context, rpID string) ([]models.Passkey, error) {
	query := `SELECT ` + passkeyColumns + ` FROM passkeys
		WHERE rp_id = ? AND deleted = 0
		ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, rpID)
	if err != nil {
		return nil, fmt.Errorf("failed to select passkeys: %w", err)
	}
	defer rows.Close()
	return collectPasskeys(rows)
}

func (r *SQLiteRepository) GetForItem(ctx context.Context, itemID string) ([]models.Passkey, error) {
	query := `SELECT ` + passkeyColumns + ` FROM passkeys
		WHERE item_id = ? AND deleted = 0
		ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to select passkeys: %w", err)
	}
	defer rows.Close()
	return collectPasskeys(rows)
}

// GetAllWithItems loads every active passkey and its parent item in one
// round trip so the identity cache rebuild never issues N+1 queries.
func (r *SQLiteRepository) GetAllWithItems(ctx context.Context) ([]models.PasskeyWithItem, error) {
	query := `SELECT p.id, p.item_id, p.rp_id, p.user_handle, p.user_name, p.display_name,
			p.public_key, p.private_key, p.prf_secret, p.created_at, p.updated_at,
			i.name, i.logo_url
		FROM passkeys p
		JOIN items i ON i.id = p.item_id
		WHERE p.deleted = 0 AND i.deleted = 0
		ORDER BY p.created_at DESC, p.id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select passkeys with items: %w", err)
	}
	defer rows.Close()

	var result []models.PasskeyWithItem
	for rows.Next() {
		var (
			pw                 models.PasskeyWithItem
			createdAt, updated int64
		)
		err := rows.Scan(
			&pw.ID, &pw.ItemID, &pw.RpID, &pw.UserHandle, &pw.UserName, &pw.DisplayName,
			&pw.PublicKeyJWK, &pw.PrivateKeyJWK, &pw.PRFSecret, &createdAt, &updated,
			&pw.ItemName, &pw.ItemLogoURL)
		if err != nil {
			return nil, err
		}
		pw.CreatedAt = time.Unix(createdAt, 0).UTC()
		pw.UpdatedAt = time.Unix(updated, 0).UTC()
		result = append(result, pw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE passkeys SET deleted = 1, updated_at = ? WHERE id = ? AND deleted = 0`

	res, err := r.db.ExecContext(ctx, query, now.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to delete passkey: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrPasskeyNotFound
	}
	return nil
}

func scanPasskey(scan func(dest ...any) error) (*models.Passkey, error) {
	var (
		p                  models.Passkey
		createdAt, updated int64
	)
	err := scan(
		&p.ID, &p.ItemID, &p.RpID, &p.UserHandle, &p.UserName, &p.DisplayName,
		&p.PublicKeyJWK, &p.PrivateKeyJWK, &p.PRFSecret, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}

func collectPasskeys(rows *sql.Rows) ([]models.Passkey, error) {
	var result []models.Passkey
	for rows.Next() {
		p, err := scanPasskey(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
