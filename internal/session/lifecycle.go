package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mercuryim/authd/internal/opaque"
	"github.com/mercuryim/authd/internal/requestctx"
)

// ErrSessionVersionConflict is returned by Rotate when the conditional
// update matched no row. The session has already been revoked by the time
// the caller sees this error.
var ErrSessionVersionConflict = errors.New("session version conflict")

// Lifecycle creates sessions and rotates their refresh tokens.
type Lifecycle struct {
	store      Store
	refreshTTL time.Duration
	log        *slog.Logger
	now        func() time.Time
}

// NewLifecycle wires a Lifecycle over the given store. refreshTTL bounds
// both the session row and every refresh token minted against it.
func NewLifecycle(store Store, refreshTTL time.Duration, log *slog.Logger) *Lifecycle {
	if log == nil {
		log = slog.Default()
	}
	return &Lifecycle{
		store:      store,
		refreshTTL: refreshTTL,
		log:        log,
		now:        time.Now,
	}
}

// CreateSession inserts a fresh session row at refresh version zero,
// stamped with the request's network snapshot. The stored refresh hash is
// empty until the first rotation writes one; sessions are only created
// after the second factor succeeds, and the first token pair immediately
// rotates version 0 to 1.
func (l *Lifecycle) CreateSession(ctx context.Context, userID string) (*Session, error) {
	snap := requestctx.From(ctx)
	now := l.now()

	sess := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		RefreshVersion: 0,
		IP:             snap.IP,
		UserAgent:      snap.UserAgent,
		CreatedAt:      now,
		ExpiresAt:      now.Add(l.refreshTTL),
	}
	if err := l.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Rotate stores the digest of rawRefreshToken against the session,
// advancing its refresh version by one, renewing its expiry, and restamping
// its network snapshot. The write is conditional on the version the caller
// observed: when another rotation got there first, the session is revoked
// and ErrSessionVersionConflict is returned, so a replayed refresh token
// locks out both the thief and the legitimate holder instead of silently
// succeeding.
func (l *Lifecycle) Rotate(ctx context.Context, sessionID, rawRefreshToken string, expectedVersion int) error {
	snap := requestctx.From(ctx)
	now := l.now()

	rot := Rotation{
		HashedRefreshToken: opaque.Digest(rawRefreshToken),
		ExpiresAt:          now.Add(l.refreshTTL),
		IP:                 snap.IP,
		UserAgent:          snap.UserAgent,
	}

	affected, err := l.store.UpdateWhere(ctx, sessionID, expectedVersion, rot)
	if err != nil {
		return err
	}
	if affected == 0 {
		if err := l.store.Revoke(ctx, sessionID, now); err != nil {
			l.log.Error("revoke after rotation conflict failed",
				"session_id", sessionID,
				"error", err,
			)
		}
		l.log.Warn("refresh rotation conflict, session revoked",
			"session_id", sessionID,
			"expected_version", expectedVersion,
		)
		return ErrSessionVersionConflict
	}
	return nil
}

// RefreshTTL returns the configured session lifetime.
func (l *Lifecycle) RefreshTTL() time.Duration { return l.refreshTTL }
