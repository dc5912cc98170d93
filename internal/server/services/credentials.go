// Package services contains the server-side session logic: credential
// checks, federated account provisioning, the revocation ledger façade and
// the SessionService that ties them to the token codec.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// CredentialVerifier checks a username/password pair against the account
// store. A missing account costs the same single bcrypt comparison as a
// wrong password.
type CredentialVerifier struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	dummyHash   string
}

func NewCredentialVerifier(db *sql.DB, m repomanager.RepositoryManager, cost int) (*CredentialVerifier, error) {
	pw, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}
	dummy, err := cryptox.HashPassword(pw, cost)
	if err != nil {
		return nil, err
	}
	return &CredentialVerifier{db: db, repomanager: m, dummyHash: dummy}, nil
}

// Verify returns the account on success.
//
// Errors: common.ErrAccountNotFound, common.ErrInvalidCredentials, or a
// wrapped common.ErrorInternal when the store fails.
func (v *CredentialVerifier) Verify(ctx context.Context, username, password string) (*models.Account, error) {
	account, err := v.repomanager.Accounts(v.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = cryptox.ComparePassword(v.dummyHash, password)
			return nil, common.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	if len(password) > maxPasswordBytes {
		_ = cryptox.ComparePassword(v.dummyHash, "")
		return nil, common.ErrInvalidCredentials
	}

	if err := cryptox.ComparePassword(account.PasswordHash, password); err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	return account, nil
}
