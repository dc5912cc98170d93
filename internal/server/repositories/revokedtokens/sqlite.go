package revokedtokens

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

// SQLiteRepository implements Repository for the embedded store with
// expires_at kept as unix seconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	query := `
		INSERT INTO revoked_tokens (jti, expires_at, revoked_at)
		VALUES (?, ?, ?)
		ON CONFLICT (jti) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, jti, expiresAt.Unix(), time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = ?)`

	var found int
	if err := r.db.QueryRowContext(ctx, query, jti).Scan(&found); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return found == 1, nil
}

// DeleteExpired compares at second precision, the resolution rows are
// stored at.
func (r *SQLiteRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM revoked_tokens WHERE expires_at < ?`

	res, err := r.db.ExecContext(ctx, query, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, jti string) (*models.RevokedToken, error) {
	query := `SELECT jti, expires_at, revoked_at FROM revoked_tokens WHERE jti = ?`

	var (
		t                    models.RevokedToken
		expiresAt, revokedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, jti).Scan(&t.JTI, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.ExpiresAt = time.Unix(expiresAt, 0)
	t.RevokedAt = time.Unix(revokedAt, 0)
	return &t, nil
}
