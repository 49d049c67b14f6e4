package flows

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mercuryim/authd/internal/directory"
	"github.com/mercuryim/authd/internal/password"
	"github.com/mercuryim/authd/internal/rate"
	"github.com/mercuryim/authd/internal/requestctx"
	"github.com/mercuryim/authd/internal/session"
	"github.com/mercuryim/authd/internal/stores"
	"github.com/mercuryim/authd/internal/token"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct horse battery staple"
)

// captureMail keeps the last code instead of sending it.
type captureMail struct {
	mu    sync.Mutex
	codes []string
}

func (m *captureMail) SendLoginCode(_ context.Context, _, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, code)
	return nil
}

func (m *captureMail) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return ""
	}
	return m.codes[len(m.codes)-1]
}

type fixture struct {
	svc      *Service
	sessions *session.MemoryStore
	dir      *directory.MemoryDirectory
	mail     *captureMail
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hasher, err := password.NewHasher(password.Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	dir := directory.NewMemoryDirectory(
		&directory.User{
			ID:           "user-1",
			Email:        testEmail,
			Role:         "member",
			PasswordHash: hash,
			Status:       directory.StatusActive,
		},
		&directory.User{
			ID:           "user-2",
			Email:        "pending@example.com",
			Role:         "member",
			PasswordHash: hash,
			Status:       directory.StatusUnverified,
		},
	)

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte("access-secret-0123456789abcdef"),
		RefreshSecret: []byte("refresh-secret-0123456789abcdef"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "authd-test",
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	sessions := session.NewMemoryStore()
	log := slog.Default()
	lifecycle := session.NewLifecycle(sessions, time.Hour, log)
	capture := &captureMail{}

	svc := New(Deps{
		Directory:    dir,
		Hasher:       hasher,
		Codec:        codec,
		Sessions:     sessions,
		Lifecycle:    lifecycle,
		Security:     session.NewSecurity(codec, sessions, nil, log),
		Challenges:   stores.NewMfaChallengeStore(rdb, "mfa", time.Minute),
		TempSessions: stores.NewTempSessionStore(rdb, "tls", 10*time.Minute),
		Limiter:      rate.New(rdb),
		Mail:         capture,
		Log:          log,
	})

	return &fixture{
		svc:      svc,
		sessions: sessions,
		dir:      dir,
		mail:     capture,
		redis:    mr,
	}
}

func testCtx() context.Context {
	return requestctx.With(context.Background(), requestctx.Snapshot{
		IP:        "203.0.113.10",
		UserAgent: "test-agent/1.0",
	})
}

// completeLogin walks the whole password→MFA path and returns the first
// token pair.
func completeLogin(t *testing.T, f *fixture, ctx context.Context) *TokenPair {
	t.Helper()

	pending, err := f.svc.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	challengeToken, err := f.svc.RequestChallenge(ctx, pending.TempToken)
	if err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	pair, err := f.svc.VerifyChallenge(ctx, pending.TempToken, challengeToken, f.mail.last())
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}
	return pair
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	_, err := f.svc.Login(ctx, testEmail, "wrong password entirely")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownEmailIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	_, errUnknown := f.svc.Login(ctx, "nobody@example.com", testPassword)
	_, errWrongPw := f.svc.Login(ctx, testEmail, "wrong password entirely")
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Fatalf("both failures should be ErrInvalidCredentials, got %v / %v", errUnknown, errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Fatal("unknown email and wrong password must be indistinguishable")
	}
}

func TestLoginUnverifiedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	pending, err := f.svc.Login(ctx, "pending@example.com", testPassword)
	if !errors.Is(err, ErrAccountNotUsable) {
		t.Fatalf("expected ErrAccountNotUsable, got %v", err)
	}
	if pending != nil {
		t.Fatal("no pending login state should be issued for an unusable account")
	}
}

func TestLoginRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	for i := 0; i < rate.PolicyLogin.Limit; i++ {
		if _, err := f.svc.Login(ctx, testEmail, "wrong password entirely"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	// Budget spent; even the correct password is throttled now.
	if _, err := f.svc.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestWrongCodeKeepsChallengeAndCounter(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	// Charge some failed attempts first so the reset is observable.
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Login(ctx, testEmail, "wrong password entirely"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}

	pending, err := f.svc.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	challengeToken, err := f.svc.RequestChallenge(ctx, pending.TempToken)
	if err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}

	code := f.mail.last()
	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	_, err = f.svc.VerifyChallenge(ctx, pending.TempToken, challengeToken, wrong)
	if !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid, got %v", err)
	}

	// The wrong code consumed nothing: login counter still charged,
	// challenge still verifiable.
	loginKey := "rl:login:" + testEmail + ":203.0.113.10"
	if !f.redis.Exists(loginKey) {
		t.Fatal("login rate-limit counter should survive a wrong code")
	}
	pair, err := f.svc.VerifyChallenge(ctx, pending.TempToken, challengeToken, code)
	if err != nil {
		t.Fatalf("correct code after wrong one should pass: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
}

func TestCompleteLoginIssuesFirstPair(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	// Charge one failed attempt so we can observe the counter reset.
	if _, err := f.svc.Login(ctx, testEmail, "wrong password entirely"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	pair := completeLogin(t, f, ctx)

	sess, err := f.sessions.FindByID(ctx, pair.SessionID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if sess.RefreshVersion != 1 {
		t.Fatalf("first pair should leave the session at version 1, got %d", sess.RefreshVersion)
	}
	if !sess.Live(time.Now()) {
		t.Fatal("fresh session should be live")
	}

	// Success forgave the password-step counter.
	loginKey := "rl:login:" + testEmail + ":203.0.113.10"
	if f.redis.Exists(loginKey) {
		t.Fatal("login rate-limit counter should be reset after MFA success")
	}

	// Temp session and challenge are burned.
	for _, key := range f.redis.Keys() {
		if strings.HasPrefix(key, "tls:") || strings.HasPrefix(key, "mfa:") {
			t.Fatalf("leftover login state key %q", key)
		}
	}
}

func TestChallengeReissueInvalidatesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	pending, err := f.svc.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	firstToken, err := f.svc.RequestChallenge(ctx, pending.TempToken)
	if err != nil {
		t.Fatalf("first RequestChallenge failed: %v", err)
	}
	firstCode := f.mail.last()

	secondToken, err := f.svc.RequestChallenge(ctx, pending.TempToken)
	if err != nil {
		t.Fatalf("second RequestChallenge failed: %v", err)
	}

	_, err = f.svc.VerifyChallenge(ctx, pending.TempToken, firstToken, firstCode)
	if !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("first challenge should be evicted, got %v", err)
	}

	if _, err := f.svc.VerifyChallenge(ctx, pending.TempToken, secondToken, f.mail.last()); err != nil {
		t.Fatalf("second challenge should verify: %v", err)
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	pair := completeLogin(t, f, ctx)

	next, err := f.svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}

	sess, err := f.sessions.FindByID(ctx, pair.SessionID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if sess.RefreshVersion != 2 {
		t.Fatalf("expected version 2 after one refresh, got %d", sess.RefreshVersion)
	}
}

func TestParallelRefreshSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	pair := completeLogin(t, f, ctx)

	type outcome struct {
		pair *TokenPair
		err  error
	}

	const n = 2
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			p, err := f.svc.Refresh(ctx, pair.RefreshToken)
			results <- outcome{pair: p, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var winner *TokenPair
	losses := 0
	for res := range results {
		switch {
		case res.err == nil:
			if winner != nil {
				t.Fatal("more than one parallel refresh succeeded")
			}
			winner = res.pair
		case errors.Is(res.err, session.ErrSessionInvalid):
			losses++
		default:
			t.Fatalf("unexpected refresh error: %v", res.err)
		}
	}
	if winner == nil || losses != n-1 {
		t.Fatalf("expected exactly one winner, got winner=%v losses=%d", winner != nil, losses)
	}

	// The losing call revoked the session, so both the old token and the
	// winner's orphaned new token are dead.
	if _, err := f.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, session.ErrSessionInvalid) {
		t.Fatalf("old token should fail with ErrSessionInvalid, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, winner.RefreshToken); !errors.Is(err, session.ErrSessionInvalid) {
		t.Fatalf("orphaned token should fail with ErrSessionInvalid, got %v", err)
	}
}

func TestLogoutAllKillsRefreshEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	first := completeLogin(t, f, ctx)
	second := completeLogin(t, f, ctx)

	if err := f.svc.RevokeUserSessions(ctx, first.UserID, "logout_all_devices"); err != nil {
		t.Fatalf("RevokeUserSessions failed: %v", err)
	}

	all, err := f.sessions.FindAllByUser(ctx, first.UserID)
	if err != nil {
		t.Fatalf("FindAllByUser failed: %v", err)
	}
	for _, sess := range all {
		if sess.RevokedAt == nil {
			t.Fatalf("session %s should be revoked", sess.ID)
		}
	}

	for _, tok := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := f.svc.Refresh(ctx, tok); !errors.Is(err, session.ErrSessionInvalid) {
			t.Fatalf("refresh after logout-all should fail with ErrSessionInvalid, got %v", err)
		}
	}
}

func TestLogoutRevokesOwnSession(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	pair := completeLogin(t, f, ctx)

	claims, err := f.svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if err := f.svc.Logout(ctx, claims); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := f.svc.Authenticate(ctx, pair.AccessToken); !errors.Is(err, session.ErrSessionInvalid) {
		t.Fatalf("access token should die with its session, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, session.ErrSessionInvalid) {
		t.Fatalf("refresh after logout should fail, got %v", err)
	}
}

func TestLogoutOthersKeepsCurrentSession(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	other := completeLogin(t, f, ctx)
	current := completeLogin(t, f, ctx)

	claims, err := f.svc.Authenticate(ctx, current.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if err := f.svc.LogoutOthers(ctx, claims); err != nil {
		t.Fatalf("LogoutOthers failed: %v", err)
	}

	if _, err := f.svc.Authenticate(ctx, current.AccessToken); err != nil {
		t.Fatalf("current session should survive logout-others: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, other.AccessToken); !errors.Is(err, session.ErrSessionInvalid) {
		t.Fatalf("other session should be revoked, got %v", err)
	}
}

func TestListAndRevokeSessions(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	first := completeLogin(t, f, ctx)
	second := completeLogin(t, f, ctx)

	list, err := f.svc.ListSessions(ctx, first.UserID, second.SessionID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	currentSeen := false
	for _, info := range list {
		if info.Current {
			if info.ID != second.SessionID {
				t.Fatalf("wrong session flagged current: %s", info.ID)
			}
			currentSeen = true
		}
	}
	if !currentSeen {
		t.Fatal("current session not flagged")
	}

	// A foreign session id reads as not found.
	err = f.svc.RevokeSession(ctx, "someone-else", first.SessionID)
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for foreign session, got %v", err)
	}

	if err := f.svc.RevokeSession(ctx, first.UserID, first.SessionID); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, session.ErrSessionInvalid) {
		t.Fatalf("revoked session should reject refresh, got %v", err)
	}
}

func TestIntrospect(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	pair := completeLogin(t, f, ctx)

	info, err := f.svc.Introspect(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Introspect failed: %v", err)
	}
	if !info.Active || info.UserID != pair.UserID || info.SessionID != pair.SessionID {
		t.Fatalf("unexpected introspection: %+v", info)
	}

	// Revoking the session flips Active even though the signature holds.
	claims, err := f.svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if err := f.svc.Logout(ctx, claims); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	info, err = f.svc.Introspect(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Introspect failed: %v", err)
	}
	if info.Active {
		t.Fatal("introspection must re-check the session row")
	}

	// Garbage is inactive, not an error.
	info, err = f.svc.Introspect(ctx, "garbage")
	if err != nil {
		t.Fatalf("Introspect failed: %v", err)
	}
	if info.Active {
		t.Fatal("garbage token cannot be active")
	}
}

func TestMFASessionExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx()

	pending, err := f.svc.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	f.redis.FastForward(time.Hour)

	if _, err := f.svc.RequestChallenge(ctx, pending.TempToken); !errors.Is(err, ErrMFASessionInvalid) {
		t.Fatalf("expected ErrMFASessionInvalid, got %v", err)
	}
}
