package services

import (
	"context"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"empty username", "  ", "a@example.com", "pw"},
		{"long username", strings.Repeat("u", 51), "a@example.com", "pw"},
		{"no at sign", "bob", "example.com", "pw"},
		{"empty email", "bob", "", "pw"},
		{"empty password", "bob", "bob@example.com", ""},
		{"oversized password", "bob", "bob@example.com", strings.Repeat("p", 73)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.accounts.Register(context.Background(), tt.username, tt.email, tt.password)
			assert.ErrorIs(t, err, common.ErrorValidation)
		})
	}
	assert.Equal(t, 0, h.countAccounts(t))
}

func TestRegister_NormalizesAndAssignsDefaultRole(t *testing.T) {
	h := newHarness(t)

	a, err := h.accounts.Register(context.Background(), " bob ", " Bob@Example.COM ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "bob", a.Username)
	assert.Equal(t, "bob@example.com", a.Email)
	assert.Equal(t, []string{"USER"}, a.Roles)
	assert.NotEqual(t, "pw", a.PasswordHash)
}

func TestRegister_Duplicate(t *testing.T) {
	h := newHarness(t)
	h.register(t, "bob", "pw")

	_, err := h.accounts.Register(context.Background(), "bob", "other@example.com", "pw")
	assert.Equal(t, common.ErrorAlreadyExists, err)

	_, err = h.accounts.Register(context.Background(), "robert", "bob@example.com", "pw")
	assert.Equal(t, common.ErrorAlreadyExists, err)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	a, created, err := h.accounts.EnsureAdmin(ctx, "admin", "admin@example.com", "admin-pw")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"ADMIN", "USER"}, a.Roles)

	again, created, err := h.accounts.EnsureAdmin(ctx, "admin", "admin@example.com", "changed")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a.ID, again.ID)
	assert.Equal(t, 1, h.countAccounts(t))

	// the first password stays
	tok := h.login(t, "admin", "admin-pw")
	p, err := h.sessions.Authorize(ctx, tok.Token)
	require.NoError(t, err)
	assert.True(t, p.HasScope("ROLE_ADMIN"))
}
