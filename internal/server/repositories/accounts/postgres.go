package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

const (
	pgInsertRole = `INSERT INTO account_roles (account_id, role_name) VALUES ($1, $2)`
	pgSelectRole = `SELECT role_name FROM account_roles WHERE account_id = $1 ORDER BY role_name`
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the account and links its roles. A taken username or email
// yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (username, password_hash, email)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		account.Username, account.PasswordHash, account.Email).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return nil, wrapWriteErr(err)
	}

	if err := insertRoles(ctx, r.db, pgInsertRole, account.ID, account.Roles); err != nil {
		return nil, err
	}

	account.Roles = sortedRoles(account.Roles)
	return account, nil
}

// GetByUsername returns common.ErrorNotFound when no account matches.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.getBy(ctx, "username", username)
}

// GetByEmail returns common.ErrorNotFound when no account matches.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getBy(ctx, "email", email)
}

// GetByID returns common.ErrorNotFound when no account matches.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.getBy(ctx, "id", id)
}

// column is one of a fixed set of identifiers, never user input.
func (r *PostgresRepository) getBy(ctx context.Context, column string, value any) (*models.Account, error) {
	query := fmt.Sprintf(
		`SELECT id, username, password_hash, email, created_at FROM accounts
		 WHERE %s = $1`, column)

	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, value).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Email, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	a.Roles, err = loadRoles(ctx, r.db, pgSelectRole, a.ID)
	if err != nil {
		return nil, err
	}
	return a, nil
}
