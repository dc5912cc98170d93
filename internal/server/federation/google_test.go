package federation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

func stubGoogle(t *testing.T, fn func(ctx context.Context, token, audience string) (*idtoken.Payload, error)) {
	t.Helper()
	original := googleValidate
	googleValidate = fn
	t.Cleanup(func() { googleValidate = original })
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	var fedErr *Error
	require.True(t, errors.As(err, &fedErr), "want *federation.Error, got %T: %v", err, err)
	assert.Equal(t, code, fedErr.Code)
}

func TestNewGoogleVerifier_RequiresClientID(t *testing.T) {
	_, err := NewGoogleVerifier(" ", 0)
	require.Error(t, err)
}

func TestGoogleVerifier_Success(t *testing.T) {
	var gotAudience string
	stubGoogle(t, func(ctx context.Context, token, audience string) (*idtoken.Payload, error) {
		gotAudience = audience
		return &idtoken.Payload{
			Issuer:  "https://accounts.google.com",
			Subject: "1234567890",
			Claims: map[string]any{
				"email":          "Alice@Example.com",
				"email_verified": true,
				"name":           "Alice",
			},
		}, nil
	})

	v, err := NewGoogleVerifier("client-1", 0)
	require.NoError(t, err)

	claims, err := v.Verify(context.Background(), "raw")
	require.NoError(t, err)
	assert.Equal(t, "client-1", gotAudience)
	assert.Equal(t, GoogleProvider, claims.Provider)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "1234567890", claims.Subject)
	assert.True(t, claims.EmailVerified)
}

func TestGoogleVerifier_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload *idtoken.Payload
		err     error
		code    ErrorCode
	}{
		{
			name: "email not verified",
			payload: &idtoken.Payload{Issuer: "accounts.google.com", Claims: map[string]any{
				"email": "bob@example.com", "email_verified": false,
			}},
			code: ErrCodeEmailUnverified,
		},
		{
			name: "email verified as string false",
			payload: &idtoken.Payload{Issuer: "accounts.google.com", Claims: map[string]any{
				"email": "bob@example.com", "email_verified": "false",
			}},
			code: ErrCodeEmailUnverified,
		},
		{
			name:    "foreign issuer",
			payload: &idtoken.Payload{Issuer: "https://evil.example.com"},
			code:    ErrCodeInvalidIssuer,
		},
		{
			name: "audience mismatch",
			err:  errors.New("idtoken: audience provided does not match aud claim in the JWT"),
			code: ErrCodeInvalidAudience,
		},
		{
			name: "expired",
			err:  errors.New("idtoken: token expired: now=1, expires=0"),
			code: ErrCodeExpired,
		},
		{
			name: "timeout",
			err:  context.DeadlineExceeded,
			code: ErrCodeJWKSUnavailable,
		},
		{
			name: "anything else",
			err:  errors.New("idtoken: invalid token"),
			code: ErrCodeInvalidToken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubGoogle(t, func(ctx context.Context, token, audience string) (*idtoken.Payload, error) {
				return tt.payload, tt.err
			})
			v, err := NewGoogleVerifier("client-1", 0)
			require.NoError(t, err)

			_, err = v.Verify(context.Background(), "raw")
			requireCode(t, err, tt.code)
		})
	}
}

func TestGoogleVerifier_EmptyToken(t *testing.T) {
	called := false
	stubGoogle(t, func(ctx context.Context, token, audience string) (*idtoken.Payload, error) {
		called = true
		return nil, nil
	})
	v, err := NewGoogleVerifier("client-1", 0)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "")
	requireCode(t, err, ErrCodeInvalidToken)
	assert.False(t, called)
}
