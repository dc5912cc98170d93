package dbx

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation_Postgres(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"}
	fk := &pgconn.PgError{Code: "23503"}

	assert.True(t, IsUniqueViolation(unique))
	assert.True(t, IsUniqueViolation(fmt.Errorf("db error: %w", unique)))
	assert.False(t, IsUniqueViolation(fk))
}

func TestIsUniqueViolation_SQLite(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO t(id, v) VALUES (1, 'a')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO t(id, v) VALUES (1, 'b')`)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(fmt.Errorf("db error: %w", err)))
}

func TestIsUniqueViolation_Other(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("connection reset")))
}
