package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/idtoken"
)

// GoogleProvider is the provider name recorded for Google sign-ins.
const GoogleProvider = "google"

var googleIssuers = map[string]struct{}{
	"accounts.google.com":         {},
	"https://accounts.google.com": {},
}

var googleValidate = idtoken.Validate

// GoogleVerifier validates Google ID tokens issued for one OAuth client.
type GoogleVerifier struct {
	clientID string
	timeout  time.Duration
}

func NewGoogleVerifier(clientID string, timeout time.Duration) (*GoogleVerifier, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("google client id is required")
	}
	return &GoogleVerifier{clientID: clientID, timeout: timeout}, nil
}

// Verify checks signature, audience and expiry via Google's published certs,
// then the issuer and email_verified.
func (v *GoogleVerifier) Verify(ctx context.Context, rawIDToken string) (*Claims, error) {
	if rawIDToken == "" {
		return nil, newError(ErrCodeInvalidToken, errors.New("token is empty"))
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	payload, err := googleValidate(ctx, rawIDToken, v.clientID)
	if err != nil {
		return nil, mapGoogleError(err)
	}
	if _, ok := googleIssuers[payload.Issuer]; !ok {
		return nil, newError(ErrCodeInvalidIssuer, fmt.Errorf("unexpected issuer %q", payload.Issuer))
	}

	claims := &Claims{
		Provider: GoogleProvider,
		Issuer:   payload.Issuer,
		Subject:  payload.Subject,
	}
	if payload.Claims != nil {
		claims.Email = strings.ToLower(stringClaim(payload.Claims, "email"))
		claims.Name = stringClaim(payload.Claims, "name")
		verified, ok := emailVerified(payload.Claims["email_verified"])
		if ok && !verified {
			return nil, newError(ErrCodeEmailUnverified, fmt.Errorf("email %q not verified", claims.Email))
		}
		claims.EmailVerified = verified
	}

	return claims, nil
}

func mapGoogleError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "audience provided does not match"):
		return newError(ErrCodeInvalidAudience, err)
	case strings.Contains(msg, "token expired"):
		return newError(ErrCodeExpired, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(ErrCodeJWKSUnavailable, err)
	}
	return newError(ErrCodeInvalidToken, err)
}
