package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

const (
	liteInsertRole = `INSERT INTO account_roles (account_id, role_name) VALUES (?, ?)`
	liteSelectRole = `SELECT role_name FROM account_roles WHERE account_id = ? ORDER BY role_name`
)

// SQLiteRepository implements Repository for the embedded store. Timestamps
// are stored as unix seconds.
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	created := r.now().UTC().Truncate(time.Second)

	query :=
		`INSERT INTO accounts (username, password_hash, email, created_at)
		 VALUES (?, ?, ?, ?)
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		account.Username, account.PasswordHash, account.Email, created.Unix()).Scan(&account.ID)
	if err != nil {
		return nil, wrapWriteErr(err)
	}
	account.CreatedAt = created

	if err := insertRoles(ctx, r.db, liteInsertRole, account.ID, account.Roles); err != nil {
		return nil, err
	}

	account.Roles = sortedRoles(account.Roles)
	return account, nil
}

func (r *SQLiteRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.getBy(ctx, "username", username)
}

func (r *SQLiteRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getBy(ctx, "email", email)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.getBy(ctx, "id", id)
}

func (r *SQLiteRepository) getBy(ctx context.Context, column string, value any) (*models.Account, error) {
	query := fmt.Sprintf(
		`SELECT id, username, password_hash, email, created_at FROM accounts
		 WHERE %s = ?`, column)

	a := &models.Account{}
	var created int64
	err := r.db.QueryRowContext(ctx, query, value).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Email, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	a.CreatedAt = time.Unix(created, 0).UTC()

	a.Roles, err = loadRoles(ctx, r.db, liteSelectRole, a.ID)
	if err != nil {
		return nil, err
	}
	return a, nil
}
