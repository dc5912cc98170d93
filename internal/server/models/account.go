package models

import "time"

// Account is a local identity record. Roles holds role names (e.g. "USER"),
// not the scope strings derived from them.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Email        string
	Roles        []string
	CreatedAt    time.Time
}

// HasRole reports whether the account holds the named role.
func (a *Account) HasRole(name string) bool {
	for _, r := range a.Roles {
		if r == name {
			return true
		}
	}
	return false
}
