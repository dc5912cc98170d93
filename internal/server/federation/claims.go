// Package federation verifies identity assertions from external providers
// (Google, any OIDC issuer with a JWKS endpoint) and exchanges OAuth2
// authorization codes for them.
package federation

import (
	"context"
	"strings"
)

// Claims is the normalized identity asserted by a provider. It is transient:
// nothing here is stored as-is.
type Claims struct {
	Provider      string
	Issuer        string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Verifier checks a raw ID token and returns the identity it asserts.
type Verifier interface {
	Verify(ctx context.Context, rawIDToken string) (*Claims, error)
}

// emailVerified reads the OIDC email_verified claim, which some providers
// send as a string. ok is false when the claim is absent or unreadable.
func emailVerified(v any) (verified, ok bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(t) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func stringClaim(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
