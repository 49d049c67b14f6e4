package flows

import (
	"context"
	"errors"
	"time"

	"github.com/mercuryim/authd/internal/audit"
	"github.com/mercuryim/authd/internal/session"
	"github.com/mercuryim/authd/internal/token"
)

// Authenticate verifies an access token and checks that its session is
// still live. It is the gate for every authenticated operation: an access
// token outlives logout only until this check.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*token.Claims, error) {
	claims, err := s.deps.Codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, session.ErrSessionInvalid
	}

	sess, err := s.deps.Sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, session.ErrSessionInvalid
		}
		return nil, err
	}
	if sess.UserID != claims.UserID() || !sess.Live(time.Now()) {
		return nil, session.ErrSessionInvalid
	}
	return claims, nil
}

// Logout revokes the caller's own session. Already-revoked sessions make
// logout a no-op rather than an error.
func (s *Service) Logout(ctx context.Context, claims *token.Claims) error {
	if err := s.deps.Sessions.Revoke(ctx, claims.SessionID, time.Now()); err != nil {
		return err
	}

	s.deps.Audit.Record(ctx, audit.Event{
		EventType: audit.EventLogoutSession,
		UserID:    claims.UserID(),
		SessionID: claims.SessionID,
		Success:   true,
	})
	s.deps.Metrics.SessionRevoked("logout")
	s.log.Info("session logged out", "user_id", claims.UserID(), "session_id", claims.SessionID)
	return nil
}

// LogoutOthers revokes every session of the caller's user except the
// current one, which stays live so the caller is not logged out by their
// own panic button.
func (s *Service) LogoutOthers(ctx context.Context, claims *token.Claims) error {
	if err := s.deps.Sessions.RevokeAllExcept(ctx, claims.UserID(), claims.SessionID, time.Now()); err != nil {
		return err
	}

	s.deps.Audit.Record(ctx, audit.Event{
		EventType: audit.EventLogoutOthers,
		UserID:    claims.UserID(),
		SessionID: claims.SessionID,
		Success:   true,
	})
	s.deps.Metrics.SessionRevoked("logout_others")
	s.log.Info("all other sessions revoked", "user_id", claims.UserID())
	return nil
}

// RevokeUserSessions revokes every session for a user, current included.
// Used by out-of-band invalidation such as password or email changes.
func (s *Service) RevokeUserSessions(ctx context.Context, userID, reason string) error {
	if err := s.deps.Sessions.RevokeAllForUser(ctx, userID, time.Now()); err != nil {
		return err
	}

	s.deps.Audit.Record(ctx, audit.Event{
		EventType: audit.EventSessionRevoked,
		UserID:    userID,
		Reason:    reason,
		Success:   true,
	})
	s.deps.Metrics.SessionRevoked(reason)
	return nil
}
