package models

import "time"

// RevokedToken is a revocation ledger row keyed by the token's jti.
type RevokedToken struct {
	JTI       string
	ExpiresAt time.Time
	RevokedAt time.Time
}
