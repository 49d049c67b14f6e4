package flows

import (
	"context"
	"errors"
	"time"

	"github.com/mercuryim/authd/internal/audit"
	"github.com/mercuryim/authd/internal/rate"
	"github.com/mercuryim/authd/internal/requestctx"
	"github.com/mercuryim/authd/internal/session"
	"github.com/mercuryim/authd/internal/token"
)

// Introspection is the display-oriented view of an access token. When the
// token fails verification, Active is false and the remaining fields come
// from the unverified payload, usable for display and nothing else.
type Introspection struct {
	Active    bool       `json:"active"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Introspect reports the state of an access token and its session.
func (s *Service) Introspect(ctx context.Context, accessToken string) (*Introspection, error) {
	snap := requestctx.From(ctx)

	rateID := "unknown"
	if claims, err := s.deps.Codec.DecodeUnverified(accessToken); err == nil && claims.SessionID != "" {
		rateID = claims.SessionID
	}
	if _, err := s.deps.Limiter.Enforce(ctx, rate.PolicyIntrospection, rateID, snap.IP); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			s.deps.Metrics.RateLimitHit(rate.PolicyIntrospection.Prefix)
			return nil, ErrRateLimited
		}
		return nil, err
	}

	s.deps.Metrics.Introspection()

	claims, err := s.deps.Codec.VerifyAccess(accessToken)
	if err != nil {
		out := &Introspection{Active: false}
		if unverified, decErr := s.deps.Codec.DecodeUnverified(accessToken); decErr == nil {
			fillIntrospection(out, unverified)
		}
		s.deps.Audit.Record(ctx, audit.Event{
			EventType: audit.EventIntrospection,
			SessionID: out.SessionID,
		})
		return out, nil
	}

	out := &Introspection{Active: true}
	fillIntrospection(out, claims)

	// Signature validity is not enough; the session must still be live.
	sess, err := s.deps.Sessions.FindByID(ctx, claims.SessionID)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		out.Active = false
	case err != nil:
		return nil, err
	default:
		out.Active = sess.Live(time.Now()) && sess.UserID == claims.UserID()
	}

	s.deps.Audit.Record(ctx, audit.Event{
		EventType: audit.EventIntrospection,
		UserID:    out.UserID,
		SessionID: out.SessionID,
		Success:   out.Active,
	})
	return out, nil
}

func fillIntrospection(out *Introspection, claims *token.Claims) {
	out.UserID = claims.UserID()
	out.Email = claims.Email
	out.Role = claims.Role
	out.SessionID = claims.SessionID
	if claims.IssuedAt != nil {
		t := claims.IssuedAt.Time
		out.IssuedAt = &t
	}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		out.ExpiresAt = &t
	}
}
