// Package repomanager vends store-specific repositories bound to a DBTX and
// runs the matching schema migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/revokedtokens"
	"github.com/pressly/goose/v3"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	RevokedTokens(db dbx.DBTX) revokedtokens.Repository
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

const sqlitePrefix = "sqlite:"

// Open connects to the store named by dsn and returns the manager for its
// dialect. "sqlite:<path>" selects the embedded store; anything else is
// handed to the pgx driver.
func Open(ctx context.Context, dsn string) (*sql.DB, RepositoryManager, error) {
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		db, err := dbx.OpenSQLite(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return db, NewSQLiteRepositoryManager(), nil
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres db: %w", err)
	}

	m, err := NewPostgresRepositoryManager(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, m, nil
}
