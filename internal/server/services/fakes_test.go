package services

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/dmitrijs2005/passkeyvault/internal/dbx"
	"github.com/dmitrijs2005/passkeyvault/internal/server/models"
	"github.com/dmitrijs2005/passkeyvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/passkeyvault/internal/server/repositories/users"
	"github.com/dmitrijs2005/passkeyvault/internal/server/repositories/vaults"
)

// fakeManager vends in-memory repositories regardless of the DB handle, so
// service logic can be tested without Postgres. The *sql.DB passed to the
// services comes from sqlmock and only has to satisfy Begin/Commit.
type fakeManager struct {
	users  *fakeUsersRepo
	tokens *fakeTokensRepo
	vaults *fakeVaultsRepo
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		users:  &fakeUsersRepo{byName: map[string]*models.User{}},
		tokens: &fakeTokensRepo{byToken: map[string]*models.RefreshToken{}},
		vaults: &fakeVaultsRepo{byUser: map[string]*models.Vault{}},
	}
}

func (m *fakeManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeManager) Users(dbx.DBTX) users.Repository                 { return m.users }
func (m *fakeManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.tokens }
func (m *fakeManager) Vaults(dbx.DBTX) vaults.Repository               { return m.vaults }

type fakeUsersRepo struct {
	byName map[string]*models.User
	nextID int
}

func (r *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if _, ok := r.byName[u.Username]; ok {
		return nil, fmt.Errorf("db error: duplicate username")
	}
	r.nextID++
	u.ID = fmt.Sprintf("user-%d", r.nextID)
	r.byName[u.Username] = u
	return u, nil
}

func (r *fakeUsersRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	u, ok := r.byName[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type fakeTokensRepo struct {
	byToken map[string]*models.RefreshToken
}

func (r *fakeTokensRepo) Create(_ context.Context, userID, token string, validity time.Duration) error {
	r.byToken[token] = &models.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(validity),
	}
	return nil
}

func (r *fakeTokensRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := r.byToken[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return rt, nil
}

func (r *fakeTokensRepo) Delete(_ context.Context, token string) error {
	delete(r.byToken, token)
	return nil
}

func (r *fakeTokensRepo) DeleteForUser(_ context.Context, userID string) error {
	for tok, rt := range r.byToken {
		if rt.UserID == userID {
			delete(r.byToken, tok)
		}
	}
	return nil
}

type fakeVaultsRepo struct {
	byUser map[string]*models.Vault
}

func (r *fakeVaultsRepo) Get(_ context.Context, userID string) (*models.Vault, error) {
	v, ok := r.byUser[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *fakeVaultsRepo) GetForUpdate(ctx context.Context, userID string) (*models.Vault, error) {
	return r.Get(ctx, userID)
}

func (r *fakeVaultsRepo) GetRevision(_ context.Context, userID string) (int64, error) {
	v, ok := r.byUser[userID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	return v.Revision, nil
}

func (r *fakeVaultsRepo) Upsert(_ context.Context, v *models.Vault) error {
	cp := *v
	r.byUser[v.UserID] = &cp
	return nil
}

// newTxDB returns a sqlmock DB that accepts any number of transactions.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	for range 16 {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	t.Cleanup(func() { db.Close() })
	return db
}
