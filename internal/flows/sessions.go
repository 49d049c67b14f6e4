package flows

import (
	"context"
	"time"

	"github.com/mercuryim/authd/internal/audit"
	"github.com/mercuryim/authd/internal/session"
)

// SessionInfo is one row of a user's session list, trimmed of secrets.
type SessionInfo struct {
	ID        string     `json:"id"`
	IP        string     `json:"ip,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	Current   bool       `json:"current"`
}

// ListSessions returns all of the user's sessions, newest first, with the
// caller's own session flagged.
func (s *Service) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	sessions, err := s.deps.Sessions.FindAllByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionInfo{
			ID:        sess.ID,
			IP:        sess.IP,
			UserAgent: sess.UserAgent,
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
			RevokedAt: sess.RevokedAt,
			Current:   sess.ID == currentSessionID,
		})
	}
	return out, nil
}

// RevokeSession revokes one of the caller's sessions by id. A session the
// caller does not own is reported as not found, not as forbidden.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	sess, err := s.deps.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return session.ErrSessionNotFound
	}

	if err := s.deps.Sessions.Revoke(ctx, sessionID, time.Now()); err != nil {
		return err
	}

	s.deps.Audit.Record(ctx, audit.Event{
		EventType: audit.EventSessionRevoked,
		UserID:    userID,
		SessionID: sessionID,
		Reason:    "user_revoked",
		Success:   true,
	})
	s.deps.Metrics.SessionRevoked("user_revoked")
	return nil
}
