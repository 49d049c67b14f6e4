package session

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when no session row exists for the given id.
var ErrSessionNotFound = errors.New("session not found")

// ErrStoreUnavailable is returned when the backing store cannot be reached.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Rotation is the field set written by a successful refresh rotation. The
// store bumps RefreshVersion itself as part of the conditional update.
type Rotation struct {
	HashedRefreshToken string
	ExpiresAt          time.Time
	IP                 string
	UserAgent          string
}

// Store persists session rows. UpdateWhere is the only concurrency
// primitive the refresh flow relies on: it must apply the rotation and bump
// RefreshVersion in a single atomic conditional write, and report how many
// rows matched.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	FindByID(ctx context.Context, id string) (*Session, error)
	FindAllByUser(ctx context.Context, userID string) ([]*Session, error)

	// UpdateWhere applies rot to the session only if its current
	// RefreshVersion equals expectedVersion, incrementing the version by
	// one. Returns the number of rows updated (0 or 1).
	UpdateWhere(ctx context.Context, id string, expectedVersion int, rot Rotation) (int64, error)

	// Revoke marks the session revoked at the given instant. Idempotent:
	// an already-revoked session keeps its original revocation time.
	Revoke(ctx context.Context, id string, at time.Time) error

	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error
	RevokeAllExcept(ctx context.Context, userID, keepID string, at time.Time) error
}
