// Package accounts stores local accounts and their role links.
package accounts

import (
	"context"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository is the account store. Create writes the account row and its
// role links with separate statements, so callers bind it to a transaction
// when both must land together.
type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
}

// wrapWriteErr maps constraint violations to common.ErrorAlreadyExists and
// wraps everything else as a db error.
func wrapWriteErr(err error) error {
	if dbx.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %w", common.ErrorAlreadyExists, err)
	}
	return fmt.Errorf("db error: %w", err)
}

func insertRoles(ctx context.Context, db dbx.DBTX, query string, accountID int64, roles []string) error {
	for _, role := range roles {
		if _, err := db.ExecContext(ctx, query, accountID, role); err != nil {
			return wrapWriteErr(err)
		}
	}
	return nil
}

func loadRoles(ctx context.Context, db dbx.DBTX, query string, accountID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	sort.Strings(roles)
	return roles, nil
}

func sortedRoles(roles []string) []string {
	out := append([]string(nil), roles...)
	sort.Strings(out)
	return out
}
