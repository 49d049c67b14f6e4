// Package directory looks up user accounts for the login and refresh
// flows. It owns no authentication decisions: it returns account records
// and lets the flows decide what a disabled or unverified account means.
package directory

import (
	"context"
	"errors"
	"strings"
)

// ErrUserNotFound is returned when no account matches the lookup. The
// flows fold this into the same client-facing error as a wrong password.
var ErrUserNotFound = errors.New("user not found")

// ErrDirectoryUnavailable is returned when the backing store cannot be
// reached.
var ErrDirectoryUnavailable = errors.New("user directory unavailable")

// Status is the account lifecycle state.
type Status string

const (
	StatusActive     Status = "active"
	StatusUnverified Status = "unverified"
	StatusSuspended  Status = "suspended"
	StatusDeleted    Status = "deleted"
)

// User is one account record. PasswordHash is PHC-encoded argon2id.
type User struct {
	ID           string
	Email        string
	Role         string
	PasswordHash string
	Status       Status
}

// Usable reports whether the account may authenticate at all.
func (u *User) Usable() bool {
	return u.Status == StatusActive
}

// Directory resolves accounts by email or id.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}

// NormalizeEmail canonicalizes an email for lookup and rate-limit keying.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
