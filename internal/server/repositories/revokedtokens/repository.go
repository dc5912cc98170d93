// Package revokedtokens stores the revocation ledger: one row per revoked
// token id, kept until the token would have expired anyway.
package revokedtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository is the ledger store. Revoke is idempotent and reports whether
// this call created the row, which makes it usable as a compare-and-set.
type Repository interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) (inserted bool, err error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Get returns common.ErrorNotFound when jti is not in the ledger.
	Get(ctx context.Context, jti string) (*models.RevokedToken, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
