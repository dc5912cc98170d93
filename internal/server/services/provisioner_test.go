package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/federation"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/revokedtokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- fakes ---

type getResult struct {
	account *models.Account
	err     error
}

// fakeAccountsRepo answers GetByEmail from a script, one entry per call.
type fakeAccountsRepo struct {
	byEmail   []getResult
	calls     int
	createErr error
	created   *models.Account
}

func (f *fakeAccountsRepo) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	f.created = a
	if f.createErr != nil {
		return nil, f.createErr
	}
	a.ID = 99
	return a, nil
}

func (f *fakeAccountsRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	r := f.byEmail[f.calls]
	f.calls++
	return r.account, r.err
}

func (f *fakeAccountsRepo) GetByUsername(context.Context, string) (*models.Account, error) {
	return nil, common.ErrorNotFound
}

func (f *fakeAccountsRepo) GetByID(context.Context, int64) (*models.Account, error) {
	return nil, common.ErrorNotFound
}

type fakeRepoManager struct {
	a accounts.Repository
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error       { return nil }
func (m *fakeRepoManager) Accounts(db dbx.DBTX) accounts.Repository           { return m.a }
func (m *fakeRepoManager) RevokedTokens(db dbx.DBTX) revokedtokens.Repository { return nil }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newFakeProvisioner(db *sql.DB, repo *fakeAccountsRepo, n Notifier) *Provisioner {
	return NewProvisioner(db, &fakeRepoManager{a: repo}, "USER", bcrypt.MinCost, n, logging.NewNopLogger())
}

// --- tests ---

func TestResolve_ConflictResolvedByReRead(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	winner := &models.Account{ID: 7, Username: "a@b.com", Email: "a@b.com", Roles: []string{"USER"}}
	repo := &fakeAccountsRepo{
		byEmail: []getResult{
			{err: common.ErrorNotFound},
			{account: winner},
		},
		createErr: fmt.Errorf("%w: duplicate key", common.ErrorAlreadyExists),
	}
	n := &recordingNotifier{}

	got, err := newFakeProvisioner(db, repo, n).Resolve(context.Background(), federation.Claims{Email: "a@b.com", EmailVerified: true})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, 0, n.count(), "the loser must not announce the account")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_ConflictUnresolvable(t *testing.T) {
	db, mock := newSQLMockDB(t)
	for i := 0; i < provisionAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	repo := &fakeAccountsRepo{createErr: common.ErrorAlreadyExists}
	for i := 0; i <= provisionAttempts; i++ {
		repo.byEmail = append(repo.byEmail, getResult{err: common.ErrorNotFound})
	}

	_, err := newFakeProvisioner(db, repo, &recordingNotifier{}).Resolve(context.Background(), federation.Claims{Email: "a@b.com", EmailVerified: true})
	assert.ErrorIs(t, err, common.ErrProvisioningConflict)
	assert.Equal(t, "a@b.com", repo.created.Email)
	assert.NotEqual(t, "a@b.com", repo.created.Username, "later attempts use another username")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_UsernameHeldByOtherAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	bob, err := h.accounts.Register(ctx, "bob@example.com", "robert@example.com", "pw")
	require.NoError(t, err)

	got, err := h.provisioner.Resolve(ctx, federation.Claims{Email: "bob@example.com", EmailVerified: true})
	require.NoError(t, err)
	assert.NotEqual(t, bob.ID, got.ID)
	assert.Equal(t, "bob@example.com", got.Email)
	assert.True(t, strings.HasPrefix(got.Username, "bob@example.com-"), got.Username)
	assert.Equal(t, 2, h.countAccounts(t))
	assert.Equal(t, 1, h.notifier.count())

	again, err := h.provisioner.Resolve(ctx, federation.Claims{Email: "bob@example.com", EmailVerified: true})
	require.NoError(t, err)
	assert.Equal(t, got.ID, again.ID)
}

func TestResolve_UnverifiedEmailRefused(t *testing.T) {
	db, mock := newSQLMockDB(t)
	repo := &fakeAccountsRepo{}

	_, err := newFakeProvisioner(db, repo, &recordingNotifier{}).Resolve(context.Background(), federation.Claims{Email: "a@b.com"})
	assert.ErrorIs(t, err, common.ErrEmailUnverified)
	assert.Equal(t, 0, repo.calls, "no lookup for an unverified email")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_LookupFailure(t *testing.T) {
	db, _ := newSQLMockDB(t)
	repo := &fakeAccountsRepo{byEmail: []getResult{{err: errors.New("db down")}}}

	_, err := newFakeProvisioner(db, repo, &recordingNotifier{}).Resolve(context.Background(), federation.Claims{Email: "a@b.com", EmailVerified: true})
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestResolve_CreateFailure(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	repo := &fakeAccountsRepo{
		byEmail:   []getResult{{err: common.ErrorNotFound}},
		createErr: errors.New("disk full"),
	}

	_, err := newFakeProvisioner(db, repo, &recordingNotifier{}).Resolve(context.Background(), federation.Claims{Email: "a@b.com", EmailVerified: true})
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestResolve_NewAccountShape(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	repo := &fakeAccountsRepo{byEmail: []getResult{{err: common.ErrorNotFound}}}
	n := &recordingNotifier{}

	got, err := newFakeProvisioner(db, repo, n).Resolve(context.Background(), federation.Claims{Email: "  New@Example.COM ", EmailVerified: true})
	require.NoError(t, err)

	assert.Equal(t, "new@example.com", got.Username)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, []string{"USER"}, got.Roles)
	cost, err := bcrypt.Cost([]byte(got.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
	assert.Equal(t, 1, n.count())
}

type failingNotifier struct{}

func (failingNotifier) NotifyProvisioned(context.Context, *models.Account) error {
	return errors.New("smtp down")
}

func TestResolve_NotifierFailureIgnored(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	repo := &fakeAccountsRepo{byEmail: []getResult{{err: common.ErrorNotFound}}}

	got, err := newFakeProvisioner(db, repo, failingNotifier{}).Resolve(context.Background(), federation.Claims{Email: "a@b.com", EmailVerified: true})
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.ID)
}

func TestResolve_EmptyEmail(t *testing.T) {
	db, _ := newSQLMockDB(t)
	_, err := newFakeProvisioner(db, &fakeAccountsRepo{}, &recordingNotifier{}).Resolve(context.Background(), federation.Claims{Email: "   ", EmailVerified: true})
	assert.ErrorIs(t, err, common.ErrInvalidClaims)
}

func TestResolve_ConcurrentFirstLoginsOneAccount(t *testing.T) {
	h := newHarness(t)

	ids := make([]int64, 6)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := h.provisioner.Resolve(context.Background(), federation.Claims{Email: "race@example.com", EmailVerified: true})
			if assert.NoError(t, err) {
				ids[i] = a.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, h.countAccounts(t))
	assert.Equal(t, 1, h.notifier.count())
}
