// Package storetest opens throwaway SQLite stores with the server schema
// applied, for tests that want a real database instead of sqlmock.
package storetest

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/migrations"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

// OpenSQLite returns a migrated SQLite database under t.TempDir(). It is
// closed when the test ends.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := dbx.OpenSQLite(ctx, filepath.Join(t.TempDir(), "gophauth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fsys, err := fs.Sub(migrations.Migrations, migrations.SQLiteDir)
	require.NoError(t, err)

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	require.NoError(t, err)
	_, err = provider.Up(ctx)
	require.NoError(t, err)

	return db
}
