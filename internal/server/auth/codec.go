// Package auth implements the signed session token: claims, the HMAC token
// codec, and the normalized Principal derived from verified claims.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultIssuer is the iss claim used when none is configured.
const DefaultIssuer = "example.com"

// CodecConfig carries everything a Codec needs. Secret is required; Method
// defaults to HS512 and Now to time.Now.
type CodecConfig struct {
	Secret []byte
	Issuer string
	Method string
	Now    func() time.Time
}

// Codec signs and verifies compact HMAC tokens. It does no I/O and never
// consults the revocation ledger.
type Codec struct {
	secret []byte
	issuer string
	method *jwt.SigningMethodHMAC
	now    func() time.Time
}

// IssuedToken is the result of Issue.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
	Claims    *Claims
}

// IssueOption tweaks a single Issue call.
type IssueOption func(*Claims)

// WithSource records the identity provider that established the session.
func WithSource(source string) IssueOption {
	return func(c *Claims) {
		c.Source = source
	}
}

func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}

	method := jwt.SigningMethodHS512
	switch strings.ToUpper(cfg.Method) {
	case "", "HS512":
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS256":
		method = jwt.SigningMethodHS256
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.Method)
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{
		secret: append([]byte(nil), cfg.Secret...),
		issuer: issuer,
		method: method,
		now:    now,
	}, nil
}

// Issue mints a token for account valid for ttl. Every call gets a fresh jti,
// so two tokens for the same account are never byte-identical.
func (c *Codec) Issue(account *models.Account, ttl time.Duration, opts ...IssueOption) (*IssuedToken, error) {
	now := c.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.Username,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID: account.ID,
		Scope:  BuildScope(account.Roles),
		Source: SourceLocal,
	}
	for _, opt := range opts {
		opt(claims)
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &IssuedToken{Token: signed, ExpiresAt: claims.ExpiresAt.Time, Claims: claims}, nil
}

// Verify checks the MAC over the raw header and claims segments first, then
// decodes the claims and checks expiry and issuer. The MAC is always computed
// with the codec's own method, and a header naming any other alg is rejected
// even when that MAC matches.
//
// Errors: common.ErrTokenMalformed, common.ErrSignatureInvalid,
// common.ErrTokenExpired.
func (c *Codec) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, common.ErrTokenMalformed
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, common.ErrSignatureInvalid
	}
	if err := c.method.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return nil, common.ErrSignatureInvalid
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, common.ErrSignatureInvalid
	default:
		return nil, fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
	}

	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing jti or sub", common.ErrTokenMalformed)
	}

	return claims, nil
}
