package auth

import (
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// SourceLocal is the idp claim value for password-authenticated sessions.
const SourceLocal = "local"

// Claims is the token payload: the registered claims (sub, iss, iat, exp,
// jti) plus the numeric account id, the space-joined scope and the identity
// source the session was established with.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"userId"`
	Scope  string `json:"scope"`
	Source string `json:"idp,omitempty"`
}

// Scopes splits the scope claim into its entries.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// BuildScope turns role names into the scope claim: "ROLE_<name>" for every
// role, joined by single spaces, in the given order.
func BuildScope(roles []string) string {
	scopes := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		scopes = append(scopes, common.RolePrefix+r)
	}
	return strings.Join(scopes, " ")
}
