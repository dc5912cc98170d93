package federation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWKSConfig describes a generic OIDC issuer.
type JWKSConfig struct {
	Name        string
	Issuer      string
	JWKSURL     string
	Audience    string
	ClockSkew   time.Duration
	MinRefresh  time.Duration
	HTTPTimeout time.Duration
}

// JWKSVerifier validates ID tokens against an issuer's published key set,
// which is cached and refreshed in the background for the lifetime of the
// context given to NewJWKSVerifier.
type JWKSVerifier struct {
	cfg   JWKSConfig
	cache *jwk.Cache
}

func NewJWKSVerifier(ctx context.Context, cfg JWKSConfig) (*JWKSVerifier, error) {
	if cfg.JWKSURL == "" {
		return nil, errors.New("jwks url is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Name == "" {
		cfg.Name = "oidc"
	}
	if cfg.MinRefresh <= 0 {
		cfg.MinRefresh = 15 * time.Minute
	}

	cache := jwk.NewCache(ctx)
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
		},
	}
	if err := cache.Register(
		cfg.JWKSURL,
		jwk.WithMinRefreshInterval(cfg.MinRefresh),
		jwk.WithHTTPClient(httpClient),
	); err != nil {
		return nil, fmt.Errorf("register jwks for %q: %w", cfg.Name, err)
	}

	return &JWKSVerifier{cfg: cfg, cache: cache}, nil
}

// Warmup fetches the key set now so the first sign-in does not pay for it.
func (v *JWKSVerifier) Warmup(ctx context.Context) error {
	if _, err := v.cache.Refresh(ctx, v.cfg.JWKSURL); err != nil {
		return newError(ErrCodeJWKSUnavailable, err)
	}
	return nil
}

func (v *JWKSVerifier) Verify(ctx context.Context, rawIDToken string) (*Claims, error) {
	if rawIDToken == "" {
		return nil, newError(ErrCodeInvalidToken, errors.New("token is empty"))
	}

	keySet, err := v.cache.Get(ctx, v.cfg.JWKSURL)
	if err != nil {
		return nil, newError(ErrCodeJWKSUnavailable, err)
	}

	parsed, err := jwt.Parse([]byte(rawIDToken), jwt.WithKeySet(keySet), jwt.WithValidate(false))
	if err != nil {
		return nil, classifyJWKSError(err)
	}

	opts := []jwt.ValidateOption{
		jwt.WithAcceptableSkew(v.cfg.ClockSkew),
		jwt.WithIssuer(v.cfg.Issuer),
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	if err := jwt.Validate(parsed, opts...); err != nil {
		switch {
		case errors.Is(err, jwt.ErrInvalidIssuer()):
			return nil, newError(ErrCodeInvalidIssuer, err)
		case errors.Is(err, jwt.ErrInvalidAudience()):
			return nil, newError(ErrCodeInvalidAudience, err)
		default:
			return nil, classifyJWKSError(err)
		}
	}

	private := parsed.PrivateClaims()
	claims := &Claims{
		Provider: v.cfg.Name,
		Issuer:   parsed.Issuer(),
		Subject:  parsed.Subject(),
		Email:    strings.ToLower(stringClaim(private, "email")),
		Name:     stringClaim(private, "name"),
	}
	verified, ok := emailVerified(private["email_verified"])
	if ok && !verified {
		return nil, newError(ErrCodeEmailUnverified, fmt.Errorf("email %q not verified", claims.Email))
	}
	claims.EmailVerified = verified

	return claims, nil
}

func classifyJWKSError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired()) {
		return newError(ErrCodeExpired, err)
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "token expired") || strings.Contains(lower, `"exp" not satisfied`) {
		return newError(ErrCodeExpired, err)
	}
	return newError(ErrCodeInvalidToken, err)
}
