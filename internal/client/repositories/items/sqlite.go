package items

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

func (r *SQLiteRepository) Insert(ctx context.Context, item *models.Item) error {
	query := `INSERT INTO items (id, name, item_type, folder_id, logo_url, created_at, updated_at, deleted, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var deletedAt *int64
	if item.DeletedAt != nil {
		v := item.DeletedAt.Unix()
		deletedAt = &v
	}
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.Name, string(item.ItemType), item.FolderID, item.LogoURL,
		item.CreatedAt.Unix(), item.UpdatedAt.Unix(), item.Deleted, deletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT id, name, item_type, folder_id, logo_url, created_at, updated_at
		FROM items WHERE id = ? AND deleted = 0`

	var (
		item               models.Item
		itemType           string
		createdAt, updated int64
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID, &item.Name, &itemType, &item.FolderID, &item.LogoURL, &createdAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to select item: %w", err)
	}

	item.ItemType = models.ItemType(itemType)
	item.CreatedAt = time.Unix(createdAt, 0).UTC()
	item.UpdatedAt = time.Unix(updated, 0).UTC()
	return &item, nil
}

func (r *SQLiteRepository) UpdateDisplay(ctx context.Context, id, name string, logoURL *string, now time.Time) error {
	query := `UPDATE items SET name = ?, logo_url = coalesce(?, logo_url), updated_at = ?
		WHERE id = ? AND deleted = 0`

	res, err := r.db.ExecContext(ctx, query, name, logoURL, now.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return requireOneRow(res, common.ErrItemNotFound)
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE items SET deleted = 1, deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted = 0`

	res, err := r.db.ExecContext(ctx, query, now.Unix(), now.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return requireOneRow(res, common.ErrItemNotFound)
}

func requireOneRow(res sql.Result, missing error) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return missing
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}
