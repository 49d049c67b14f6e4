package flows

import (
	"context"
	"errors"

	"github.com/mercuryim/authd/internal/audit"
	"github.com/mercuryim/authd/internal/directory"
	"github.com/mercuryim/authd/internal/metrics"
	"github.com/mercuryim/authd/internal/rate"
	"github.com/mercuryim/authd/internal/requestctx"
	"github.com/mercuryim/authd/internal/stores"
)

// dummyHash keeps the password comparison on the unknown-email path, so
// lookup misses cost the same as mismatches.
const dummyHash = "$argon2id$v=19$m=65536,t=2,p=2$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// LoginPending is the password step's outcome: the caller is parked in the
// MFA-pending state identified by TempToken until the second factor
// completes or the token's TTL runs out.
type LoginPending struct {
	TempToken string
	Email     string
}

// Login runs the password step. It never creates a session; success only
// buys the caller a short-lived MFA-pending state.
func (s *Service) Login(ctx context.Context, email, pass string) (*LoginPending, error) {
	snap := requestctx.From(ctx)
	email = directory.NormalizeEmail(email)

	res, err := s.deps.Limiter.Enforce(ctx, rate.PolicyLogin, email, snap.IP)
	if err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			s.deps.Audit.Record(ctx, audit.Event{
				EventType: audit.EventLoginRateLimited,
				Metadata:  map[string]string{"email": email},
			})
			s.deps.Metrics.Login(metrics.OutcomeRateLimited)
			s.deps.Metrics.RateLimitHit(rate.PolicyLogin.Prefix)
			return nil, ErrRateLimited
		}
		return nil, err
	}

	user, err := s.deps.Directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			_, _ = s.deps.Hasher.Verify(pass, dummyHash)
			s.failLogin(ctx, "", email, "unknown_email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.deps.Hasher.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		s.failLogin(ctx, user.ID, email, "wrong_password")
		return nil, ErrInvalidCredentials
	}

	if !user.Usable() {
		s.failLogin(ctx, user.ID, email, "account_"+string(user.Status))
		return nil, ErrAccountNotUsable
	}

	tempToken, err := s.deps.TempSessions.Create(ctx, &stores.TempSession{
		UserID:            user.ID,
		Email:             user.Email,
		Role:              user.Role,
		LoginRateLimitKey: res.Key,
		IP:                snap.IP,
		UserAgent:         snap.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("password accepted, mfa pending", "user_id", user.ID)
	return &LoginPending{TempToken: tempToken, Email: user.Email}, nil
}

func (s *Service) failLogin(ctx context.Context, userID, email, reason string) {
	s.deps.Audit.Record(ctx, audit.Event{
		EventType: audit.EventLoginFailure,
		UserID:    userID,
		Reason:    reason,
		Metadata:  map[string]string{"email": email},
	})
	s.deps.Metrics.Login(metrics.OutcomeFailure)
}

// RequestChallenge issues (or reissues) the MFA code for a pending login
// and mails it out. Reissuing always invalidates the previous code.
func (s *Service) RequestChallenge(ctx context.Context, tempToken string) (string, error) {
	snap := requestctx.From(ctx)

	ts, err := s.deps.TempSessions.Get(ctx, tempToken)
	if err != nil {
		if errors.Is(err, stores.ErrTempSessionNotFound) {
			return "", ErrMFASessionInvalid
		}
		return "", err
	}

	if _, err := s.deps.Limiter.Enforce(ctx, rate.PolicyMFAResend, ts.UserID, snap.IP); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			s.deps.Audit.Record(ctx, audit.Event{
				EventType: audit.EventMFARateLimited,
				UserID:    ts.UserID,
			})
			s.deps.Metrics.RateLimitHit(rate.PolicyMFAResend.Prefix)
			return "", ErrRateLimited
		}
		return "", err
	}

	challengeToken, code, err := s.deps.Challenges.CreateChallenge(ctx, ts.UserID)
	if err != nil {
		return "", err
	}
	if err := s.deps.Mail.SendLoginCode(ctx, ts.Email, code); err != nil {
		return "", err
	}

	s.deps.Audit.Record(ctx, audit.Event{
		EventType: audit.EventMFAChallengeIssued,
		UserID:    ts.UserID,
		Success:   true,
	})
	return challengeToken, nil
}

// VerifyChallenge completes the login. On a correct code it creates the
// session, mints the first token pair, burns the temp login state, and
// forgives the password-step rate limit counter.
func (s *Service) VerifyChallenge(ctx context.Context, tempToken, challengeToken, code string) (*TokenPair, error) {
	snap := requestctx.From(ctx)

	ts, err := s.deps.TempSessions.Get(ctx, tempToken)
	if err != nil {
		if errors.Is(err, stores.ErrTempSessionNotFound) {
			return nil, ErrMFASessionInvalid
		}
		return nil, err
	}

	if _, err := s.deps.Limiter.Enforce(ctx, rate.PolicyMFAVerify, ts.UserID, snap.IP); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			s.deps.Audit.Record(ctx, audit.Event{
				EventType: audit.EventMFARateLimited,
				UserID:    ts.UserID,
			})
			s.deps.Metrics.MFAVerification(metrics.OutcomeRateLimited)
			s.deps.Metrics.RateLimitHit(rate.PolicyMFAVerify.Prefix)
			return nil, ErrRateLimited
		}
		return nil, err
	}

	if err := s.deps.Challenges.VerifyChallenge(ctx, challengeToken, code, ts.UserID); err != nil {
		switch {
		case errors.Is(err, stores.ErrChallengeNotFound),
			errors.Is(err, stores.ErrChallengeUserMismatch),
			errors.Is(err, stores.ErrChallengeCodeInvalid):
			s.deps.Audit.Record(ctx, audit.Event{
				EventType: audit.EventMFAVerifyFailure,
				UserID:    ts.UserID,
				Error:     err.Error(),
			})
			s.deps.Metrics.MFAVerification(metrics.OutcomeFailure)
			return nil, ErrChallengeInvalid
		default:
			return nil, err
		}
	}

	// The account may have been disabled while the login was pending.
	user, err := s.deps.Directory.FindByID(ctx, ts.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil, ErrAccountNotUsable
		}
		return nil, err
	}
	if !user.Usable() {
		return nil, ErrAccountNotUsable
	}

	sess, err := s.deps.Lifecycle.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	pair, err := s.issuePair(ctx, user.ID, user.Email, user.Role, sess, 0)
	if err != nil {
		return nil, err
	}

	if err := s.deps.TempSessions.Delete(ctx, tempToken); err != nil {
		s.log.Error("temp login session cleanup failed", "user_id", user.ID, "error", err)
	}
	if err := s.deps.Limiter.Reset(ctx, ts.LoginRateLimitKey); err != nil {
		s.log.Error("login rate limit reset failed", "user_id", user.ID, "error", err)
	}

	s.deps.Audit.Record(ctx, audit.Event{
		EventType: audit.EventMFAVerifySuccess,
		UserID:    user.ID,
		SessionID: sess.ID,
		Success:   true,
	})
	s.deps.Audit.Record(ctx, audit.Event{
		EventType: audit.EventLoginSuccess,
		UserID:    user.ID,
		SessionID: sess.ID,
		Success:   true,
	})
	s.deps.Metrics.MFAVerification(metrics.OutcomeSuccess)
	s.deps.Metrics.Login(metrics.OutcomeSuccess)

	s.log.Info("login complete", "user_id", user.ID, "session_id", sess.ID)
	return pair, nil
}
