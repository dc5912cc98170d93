package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

// Ledger is the revocation ledger. Every read goes to the store; there is no
// in-process cache, so a revoke is visible to all instances at once.
type Ledger struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	now         func() time.Time
}

func NewLedger(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *Ledger {
	return &Ledger{
		db:          db,
		repomanager: m,
		log:         log.With("module", "ledger"),
		now:         time.Now,
	}
}

// Revoke records jti until expiresAt. inserted is false when it was already
// revoked.
func (l *Ledger) Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	inserted, err := l.repomanager.RevokedTokens(l.db).Revoke(ctx, jti, expiresAt)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return inserted, nil
}

func (l *Ledger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	revoked, err := l.repomanager.RevokedTokens(l.db).IsRevoked(ctx, jti)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return revoked, nil
}

// Get returns the ledger entry for jti, or common.ErrorNotFound.
func (l *Ledger) Get(ctx context.Context, jti string) (*models.RevokedToken, error) {
	t, err := l.repomanager.RevokedTokens(l.db).Get(ctx, jti)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return t, nil
}

// Sweep deletes entries whose tokens have already expired. Those tokens fail
// the expiry check anyway, so any process may sweep at any time.
func (l *Ledger) Sweep(ctx context.Context) (int64, error) {
	n, err := l.repomanager.RevokedTokens(l.db).DeleteExpired(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done. Failed sweeps are
// logged and retried on the next tick.
func (l *Ledger) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.log.Info(ctx, "ledger sweeper started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			l.log.Info(ctx, "ledger sweeper stopped")
			return nil
		case <-ticker.C:
			n, err := l.Sweep(ctx)
			if err != nil {
				l.log.Error(ctx, "ledger sweep failed", "error", err)
				continue
			}
			if n > 0 {
				l.log.Info(ctx, "ledger swept", "purged", n)
			}
		}
	}
}
