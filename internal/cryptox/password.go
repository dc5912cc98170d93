// Package cryptox wraps the password hashing primitive used for local
// credentials.
package cryptox

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of password at the given cost. A cost
// outside bcrypt's accepted range falls back to DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword checks password against a bcrypt hash. A mismatch yields
// common.ErrInvalidCredentials; a hash that cannot be parsed yields a wrapped
// error so broken rows are not confused with wrong passwords.
func ComparePassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return common.ErrInvalidCredentials
	default:
		return fmt.Errorf("compare password: %w", err)
	}
}

// HashCost reports the cost a hash was generated with.
func HashCost(hash string) (int, error) {
	return bcrypt.Cost([]byte(hash))
}
