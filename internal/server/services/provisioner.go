package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/federation"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

// Provisioner maps federated identities to local accounts, creating the
// account on first login.
type Provisioner struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	defaultRole string
	cost        int
	notifier    Notifier
	log         logging.Logger
}

func NewProvisioner(db *sql.DB, m repomanager.RepositoryManager, defaultRole string, cost int, notifier Notifier, log logging.Logger) *Provisioner {
	return &Provisioner{
		db:          db,
		repomanager: m,
		defaultRole: defaultRole,
		cost:        cost,
		notifier:    notifier,
		log:         log.With("module", "provisioner"),
	}
}

// provisionAttempts bounds how many usernames Resolve tries for a new
// account before giving up.
const provisionAttempts = 3

// Resolve returns the account owning claims.Email, creating it if needed.
// Only a provider-verified email may reach an account, existing or new.
// Concurrent first logins for the same email race on the store's unique
// constraints; the loser re-reads the winner's account. When the email is
// free but its username is held by another account, a suffixed username is
// tried instead.
//
// Errors: common.ErrInvalidClaims, common.ErrEmailUnverified,
// common.ErrProvisioningConflict (no free username was found), or a wrapped
// common.ErrorInternal.
func (p *Provisioner) Resolve(ctx context.Context, claims federation.Claims) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return nil, common.ErrInvalidClaims
	}
	if !claims.EmailVerified {
		p.log.Warn(ctx, "federated login with unverified email refused", "provider", claims.Provider)
		return nil, common.ErrEmailUnverified
	}

	account, err := p.repomanager.Accounts(p.db).GetByEmail(ctx, email)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	hash, err := p.randomPasswordHash()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	username := email
	for attempt := 1; attempt <= provisionAttempts; attempt++ {
		account, err = p.create(ctx, username, email, hash)
		switch {
		case err == nil:
			p.log.Info(ctx, "federated account created", "account_id", account.ID, "provider", claims.Provider)
			if nErr := p.notifier.NotifyProvisioned(ctx, account); nErr != nil {
				p.log.Warn(ctx, "provisioning notification failed", "account_id", account.ID, "error", nErr)
			}
			return account, nil
		case !errors.Is(err, common.ErrorAlreadyExists):
			return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
		}

		p.log.Debug(ctx, "provisioning conflict, re-reading", "attempt", attempt)
		account, err = p.repomanager.Accounts(p.db).GetByEmail(ctx, email)
		switch {
		case err == nil:
			return account, nil
		case !errors.Is(err, common.ErrorNotFound):
			return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
		}

		// the email is still free, so the username belongs to someone else
		suffix, err := common.MakeRandHexString(3)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
		}
		username = email + "-" + suffix
	}

	return nil, common.ErrProvisioningConflict
}

func (p *Provisioner) create(ctx context.Context, username, email, hash string) (*models.Account, error) {
	candidate := &models.Account{
		Username:     username,
		PasswordHash: hash,
		Email:        email,
		Roles:        []string{p.defaultRole},
	}
	var account *models.Account
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		account, err = p.repomanager.Accounts(tx).Create(ctx, candidate)
		return err
	})
	return account, err
}

// randomPasswordHash hashes 32 random bytes, hex-encoded. The plaintext is
// wiped and never leaves this function.
func (p *Provisioner) randomPasswordHash() (string, error) {
	raw := common.GenerateRandByteArray(32)
	defer common.WipeByteArray(raw)

	encoded := make([]byte, hex.EncodedLen(len(raw)))
	defer common.WipeByteArray(encoded)
	hex.Encode(encoded, raw)

	return cryptox.HashPassword(string(encoded), p.cost)
}
