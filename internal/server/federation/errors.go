package federation

import "fmt"

// ErrorCode represents verifier error categories.
type ErrorCode string

const (
	ErrCodeInvalidToken    ErrorCode = "invalid_token"
	ErrCodeExpired         ErrorCode = "token_expired"
	ErrCodeInvalidIssuer   ErrorCode = "invalid_issuer"
	ErrCodeInvalidAudience ErrorCode = "invalid_audience"
	ErrCodeEmailUnverified ErrorCode = "email_unverified"
	ErrCodeExchangeFailed  ErrorCode = "exchange_failed"
	ErrCodeJWKSUnavailable ErrorCode = "jwks_unavailable"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeInvalidToken:    "Invalid token",
	ErrCodeExpired:         "Token expired",
	ErrCodeInvalidIssuer:   "Invalid issuer",
	ErrCodeInvalidAudience: "Invalid audience",
	ErrCodeEmailUnverified: "Email not verified",
	ErrCodeExchangeFailed:  "Code exchange failed",
	ErrCodeJWKSUnavailable: "JWKS unavailable",
}

// Error wraps verifier errors with a stable code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, err error) error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}
