package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mercuryim/authd/internal/audit"
	"github.com/mercuryim/authd/internal/opaque"
	"github.com/mercuryim/authd/internal/requestctx"
	"github.com/mercuryim/authd/internal/token"
)

// ErrSessionInvalid is the single client-facing failure of refresh token
// validation. The concrete reason is audited and logged but never returned
// to the caller.
var ErrSessionInvalid = errors.New("session invalid")

// Revocation reason codes recorded when refresh validation fails.
const (
	ReasonBadSignature    = "bad_signature"
	ReasonNotFound        = "not_found"
	ReasonUserMismatch    = "user_mismatch"
	ReasonAlreadyRevoked  = "already_revoked"
	ReasonIPMismatch      = "ip_mismatch"
	ReasonUAMismatch      = "ua_mismatch"
	ReasonExpired         = "expired"
	ReasonVersionMismatch = "version_mismatch"
	ReasonTokenInvalid    = "token_invalid"
)

// Security validates presented refresh tokens against their session rows.
type Security struct {
	codec *token.Codec
	store Store
	audit *audit.Dispatcher
	log   *slog.Logger
	now   func() time.Time
}

func NewSecurity(codec *token.Codec, store Store, dispatcher *audit.Dispatcher, log *slog.Logger) *Security {
	if log == nil {
		log = slog.Default()
	}
	return &Security{
		codec: codec,
		store: store,
		audit: dispatcher,
		log:   log,
		now:   time.Now,
	}
}

// ValidateRefreshToken runs the ordered validation chain over rawToken and
// returns the live session and verified claims on success. The order is
// load-bearing: signature, existence, ownership, revocation, network
// binding, device binding, expiry, version, and finally the stored token
// digest. Every failure after the session is loaded revokes it, so a token
// that trips any check is dead on first use.
func (s *Security) ValidateRefreshToken(ctx context.Context, rawToken string) (*Session, *token.Claims, error) {
	claims, err := s.codec.VerifyRefresh(rawToken)
	if err != nil {
		s.reject(ctx, nil, nil, ReasonBadSignature)
		return nil, nil, ErrSessionInvalid
	}

	sess, err := s.store.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			s.reject(ctx, nil, claims, ReasonNotFound)
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, err
	}

	if sess.UserID != claims.UserID() {
		s.revokeAndReject(ctx, sess, claims, ReasonUserMismatch)
		return nil, nil, ErrSessionInvalid
	}

	if sess.RevokedAt != nil {
		// Already dead, nothing left to revoke.
		s.reject(ctx, sess, claims, ReasonAlreadyRevoked)
		return nil, nil, ErrSessionInvalid
	}

	snap := requestctx.From(ctx)
	if sess.IP != "" && snap.IP != "" && !sameNetwork(sess.IP, snap.IP) {
		s.revokeAndReject(ctx, sess, claims, ReasonIPMismatch)
		return nil, nil, ErrSessionInvalid
	}

	if sess.UserAgent != "" && snap.UserAgent != "" && sess.UserAgent != snap.UserAgent {
		s.revokeAndReject(ctx, sess, claims, ReasonUAMismatch)
		return nil, nil, ErrSessionInvalid
	}

	if !sess.ExpiresAt.After(s.now()) {
		s.revokeAndReject(ctx, sess, claims, ReasonExpired)
		return nil, nil, ErrSessionInvalid
	}

	if sess.RefreshVersion != claims.RefreshVersion {
		s.revokeAndReject(ctx, sess, claims, ReasonVersionMismatch)
		return nil, nil, ErrSessionInvalid
	}

	if !opaque.Equal(opaque.Digest(rawToken), sess.HashedRefreshToken) {
		s.revokeAndReject(ctx, sess, claims, ReasonTokenInvalid)
		return nil, nil, ErrSessionInvalid
	}

	return sess, claims, nil
}

func (s *Security) revokeAndReject(ctx context.Context, sess *Session, claims *token.Claims, reason string) {
	if err := s.store.Revoke(ctx, sess.ID, s.now()); err != nil {
		s.log.Error("revoke on refresh validation failure failed",
			"session_id", sess.ID,
			"reason", reason,
			"error", err,
		)
	}
	s.audit.Record(ctx, audit.Event{
		EventType: audit.EventSessionRevoked,
		UserID:    sess.UserID,
		SessionID: sess.ID,
		Reason:    reason,
	})
	s.reject(ctx, sess, claims, reason)
}

func (s *Security) reject(ctx context.Context, sess *Session, claims *token.Claims, reason string) {
	event := audit.Event{
		EventType: audit.EventRefreshInvalid,
		Reason:    reason,
	}
	if sess != nil {
		event.UserID = sess.UserID
		event.SessionID = sess.ID
	} else if claims != nil {
		event.UserID = claims.UserID()
		event.SessionID = claims.SessionID
	}
	s.audit.Record(ctx, event)

	s.log.Warn("refresh token rejected",
		"session_id", event.SessionID,
		"reason", reason,
	)
}
