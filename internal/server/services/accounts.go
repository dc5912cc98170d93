package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

const maxUsernameLen = 50

// AccountService handles local sign-up and the startup admin account.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	defaultRole string
	cost        int
	log         logging.Logger
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, defaultRole string, cost int, log logging.Logger) *AccountService {
	return &AccountService{
		db:          db,
		repomanager: m,
		defaultRole: defaultRole,
		cost:        cost,
		log:         log.With("module", "accounts"),
	}
}

// Register creates a local account holding the default role.
//
// Errors: common.ErrorValidation, common.ErrorAlreadyExists, or a wrapped
// common.ErrorInternal.
func (s *AccountService) Register(ctx context.Context, username, email, password string) (*models.Account, error) {
	return s.create(ctx, username, email, password, []string{s.defaultRole})
}

// EnsureAdmin creates an account holding the ADMIN and default roles unless
// one with that username exists. created reports whether it did.
func (s *AccountService) EnsureAdmin(ctx context.Context, username, email, password string) (account *models.Account, created bool, err error) {
	account, err = s.repomanager.Accounts(s.db).GetByUsername(ctx, username)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, false, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	roles := []string{common.RoleAdmin}
	if s.defaultRole != common.RoleAdmin {
		roles = append(roles, s.defaultRole)
	}
	account, err = s.create(ctx, username, email, password, roles)
	if errors.Is(err, common.ErrorAlreadyExists) {
		// another instance got there first
		account, err = s.repomanager.Accounts(s.db).GetByUsername(ctx, username)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", common.ErrorInternal, err)
		}
		return account, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.log.Warn(ctx, "admin account created, change its password", "username", username)
	return account, true, nil
}

func (s *AccountService) create(ctx context.Context, username, email, password string, roles []string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	switch {
	case username == "" || utf8.RuneCountInString(username) > maxUsernameLen:
		return nil, fmt.Errorf("%w: username must be 1-%d characters", common.ErrorValidation, maxUsernameLen)
	case email == "" || !strings.Contains(email, "@"):
		return nil, fmt.Errorf("%w: email is invalid", common.ErrorValidation)
	case password == "" || len(password) > maxPasswordBytes:
		return nil, fmt.Errorf("%w: password must be 1-%d bytes", common.ErrorValidation, maxPasswordBytes)
	}

	hash, err := cryptox.HashPassword(password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	var account *models.Account
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		account, err = s.repomanager.Accounts(tx).Create(ctx, &models.Account{
			Username:     username,
			PasswordHash: hash,
			Email:        email,
			Roles:        roles,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	s.log.Info(ctx, "account registered", "account_id", account.ID)
	return account, nil
}
