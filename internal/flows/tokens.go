package flows

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mercuryim/authd/internal/session"
	"github.com/mercuryim/authd/internal/token"
)

// TokenPair is one issued access/refresh token pair plus the identity it
// was minted for.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	UserID           string
	Email            string
	Role             string
	SessionID        string
}

// issuePair mints the next token pair for a session and rotates the
// session row to match. The refresh claims carry expectedVersion+1, which
// is exactly the version the row holds after Rotate succeeds, so a freshly
// issued refresh token always validates. The first pair after login runs
// this with expectedVersion 0, leaving the row at version 1.
func (s *Service) issuePair(ctx context.Context, userID, email, role string, sess *session.Session, expectedVersion int) (*TokenPair, error) {
	now := time.Now()
	claims := token.Claims{
		Email:          email,
		Role:           role,
		SessionID:      sess.ID,
		RefreshVersion: expectedVersion + 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	}

	accessToken, err := s.deps.Codec.SignAccess(claims)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.deps.Codec.SignRefresh(claims)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Lifecycle.Rotate(ctx, sess.ID, refreshToken, expectedVersion); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  now.Add(s.deps.Codec.AccessTTL()),
		RefreshExpiresAt: now.Add(s.deps.Codec.RefreshTTL()),
		UserID:           userID,
		Email:            email,
		Role:             role,
		SessionID:        sess.ID,
	}, nil
}
