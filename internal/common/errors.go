// Package common defines shared constants and sentinel errors used across
// the gophauth layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors. ErrorUnauthorized is the only authentication
	// failure callers outside the services package ever see.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Credential errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")

	// Token errors.
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenMalformed   = errors.New("token malformed")
	ErrTokenRevoked     = errors.New("token revoked")
	ErrTokenAlreadyUsed = errors.New("token already used")

	// Session lifecycle errors.
	ErrAccountVanished      = errors.New("account vanished")
	ErrProvisioningConflict = errors.New("provisioning conflict")
	ErrInvalidClaims        = errors.New("invalid federated claims")
	ErrEmailUnverified      = errors.New("federated email not verified")
)
