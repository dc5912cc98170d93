package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/storetest"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testTTL = time.Hour

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	accounts []*models.Account
}

func (n *recordingNotifier) NotifyProvisioned(ctx context.Context, a *models.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accounts = append(n.accounts, a)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.accounts)
}

type harness struct {
	db          *sql.DB
	repos       repomanager.RepositoryManager
	clock       *testClock
	codec       *auth.Codec
	accounts    *AccountService
	ledger      *Ledger
	provisioner *Provisioner
	notifier    *recordingNotifier
	sessions    *SessionService
}

// newHarness wires every service over a fresh SQLite store. mutate may
// adjust the session deps before the SessionService is built.
func newHarness(t *testing.T, mutate ...func(*SessionDeps)) *harness {
	t.Helper()

	db := storetest.OpenSQLite(t)
	repos := repomanager.NewSQLiteRepositoryManager()
	log := logging.NewNopLogger()
	clock := &testClock{now: time.Now().Truncate(time.Second)}

	codec, err := auth.NewCodec(auth.CodecConfig{Secret: []byte("test-secret"), Now: clock.Now})
	require.NoError(t, err)

	creds, err := NewCredentialVerifier(db, repos, bcrypt.MinCost)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	ledger := NewLedger(db, repos, log)
	ledger.now = clock.Now
	provisioner := NewProvisioner(db, repos, "USER", bcrypt.MinCost, notifier, log)

	deps := SessionDeps{
		DB:                    db,
		Repos:                 repos,
		Codec:                 codec,
		Credentials:           creds,
		Provisioner:           provisioner,
		Ledger:                ledger,
		Logger:                log,
		TokenTTL:              testTTL,
		StrictRefreshRotation: true,
	}
	for _, m := range mutate {
		m(&deps)
	}

	return &harness{
		db:          db,
		repos:       repos,
		clock:       clock,
		codec:       codec,
		accounts:    NewAccountService(db, repos, "USER", bcrypt.MinCost, log),
		ledger:      ledger,
		provisioner: provisioner,
		notifier:    notifier,
		sessions:    NewSessionService(deps),
	}
}

func (h *harness) register(t *testing.T, username, password string) *models.Account {
	t.Helper()
	a, err := h.accounts.Register(context.Background(), username, username+"@example.com", password)
	require.NoError(t, err)
	return a
}

func (h *harness) login(t *testing.T, username, password string) *auth.IssuedToken {
	t.Helper()
	tok, err := h.sessions.Authenticate(context.Background(), username, password)
	require.NoError(t, err)
	return tok
}

func (h *harness) valid(t *testing.T, token string) bool {
	t.Helper()
	res, err := h.sessions.Introspect(context.Background(), token)
	require.NoError(t, err)
	return res.Valid
}

func (h *harness) countAccounts(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, h.db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n))
	return n
}
