package flows

import (
	"context"
	"errors"

	"github.com/mercuryim/authd/internal/audit"
	"github.com/mercuryim/authd/internal/metrics"
	"github.com/mercuryim/authd/internal/rate"
	"github.com/mercuryim/authd/internal/requestctx"
	"github.com/mercuryim/authd/internal/session"
)

// Refresh exchanges a live refresh token for the next pair. Validation and
// rotation both fail closed: any rejected token leaves its session revoked.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (*TokenPair, error) {
	snap := requestctx.From(ctx)

	// Throttle per claimed session before any verification work. The
	// unverified sid is only a rate-limit key, never an identity.
	rateID := "unknown"
	if claims, err := s.deps.Codec.DecodeUnverified(rawRefreshToken); err == nil && claims.SessionID != "" {
		rateID = claims.SessionID
	}
	if _, err := s.deps.Limiter.Enforce(ctx, rate.PolicyRefresh, rateID, snap.IP); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			s.deps.Audit.Record(ctx, audit.Event{
				EventType: audit.EventRefreshRateLimited,
				SessionID: rateID,
			})
			s.deps.Metrics.Refresh(metrics.OutcomeRateLimited)
			s.deps.Metrics.RateLimitHit(rate.PolicyRefresh.Prefix)
			return nil, ErrRateLimited
		}
		return nil, err
	}

	sess, claims, err := s.deps.Security.ValidateRefreshToken(ctx, rawRefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrSessionInvalid) {
			s.deps.Metrics.Refresh(metrics.OutcomeInvalid)
		}
		return nil, err
	}

	pair, err := s.issuePair(ctx, claims.UserID(), claims.Email, claims.Role, sess, claims.RefreshVersion)
	if err != nil {
		if errors.Is(err, session.ErrSessionVersionConflict) {
			// Lost the rotation race; the winner holds the only live
			// token and the session is already dead.
			s.deps.Audit.Record(ctx, audit.Event{
				EventType: audit.EventRefreshInvalid,
				UserID:    sess.UserID,
				SessionID: sess.ID,
				Reason:    session.ReasonVersionMismatch,
			})
			s.deps.Metrics.Refresh(metrics.OutcomeConflict)
			return nil, session.ErrSessionInvalid
		}
		return nil, err
	}

	s.deps.Audit.Record(ctx, audit.Event{
		EventType: audit.EventRefreshSuccess,
		UserID:    sess.UserID,
		SessionID: sess.ID,
		Success:   true,
	})
	s.deps.Metrics.Refresh(metrics.OutcomeSuccess)
	return pair, nil
}
