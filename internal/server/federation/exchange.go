package federation

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Exchanger turns an OAuth2 authorization code into verified claims: the code
// is redeemed at the provider's token endpoint and the returned id_token is
// handed to a Verifier.
type Exchanger struct {
	cfg      *oauth2.Config
	verifier Verifier
}

func NewExchanger(cfg *oauth2.Config, verifier Verifier) *Exchanger {
	return &Exchanger{cfg: cfg, verifier: verifier}
}

// NewGoogleExchanger configures an Exchanger against Google's endpoints with
// the openid, email and profile scopes.
func NewGoogleExchanger(clientID, clientSecret, redirectURL string, verifier Verifier) *Exchanger {
	return NewExchanger(&oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}, verifier)
}

// AuthCodeURL is the consent page a browser is sent to.
func (e *Exchanger) AuthCodeURL(state string) string {
	return e.cfg.AuthCodeURL(state)
}

func (e *Exchanger) Exchange(ctx context.Context, code string) (*Claims, error) {
	if strings.TrimSpace(code) == "" {
		return nil, newError(ErrCodeExchangeFailed, errors.New("authorization code is empty"))
	}

	tok, err := e.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, newError(ErrCodeExchangeFailed, err)
	}

	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return nil, newError(ErrCodeExchangeFailed, errors.New("token response has no id_token"))
	}

	return e.verifier.Verify(ctx, raw)
}
