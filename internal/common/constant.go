// Package common contains shared constants and sentinel errors used across
// gophauth components.
package common

// AccessTokenHeaderName is the gRPC/HTTP metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// RolePrefix is prepended to every role name when building a token scope.
const RolePrefix = "ROLE_"

// Role names seeded by the initial migration.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)
