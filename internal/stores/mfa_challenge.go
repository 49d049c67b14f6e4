// Package stores provides the Redis-backed, short-lived records that bridge
// the login flow's intermediate states: the MFA challenge awaiting its code
// and the temp login session between password success and MFA verification.
//
// Every record lives under the SHA-256 digest of its opaque client token,
// never the raw value, and expires by TTL. Records are single-use: consumed
// on success, evicted on replacement.
package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mercuryim/authd/internal/opaque"
)

var (
	ErrChallengeNotFound     = errors.New("mfa challenge not found")
	ErrChallengeUserMismatch = errors.New("mfa challenge user mismatch")
	ErrChallengeCodeInvalid  = errors.New("mfa challenge code invalid")
	ErrChallengeBackend      = errors.New("mfa challenge backend unavailable")
)

const mfaCodeLength = 6

// MfaChallenge is the stored record for one outstanding code. Only the code
// digest is persisted.
type MfaChallenge struct {
	UserID     string `json:"user_id"`
	CodeDigest string `json:"code_digest"`
	CreatedAt  int64  `json:"created_at"`
	ExpiresAt  int64  `json:"expires_at"`
}

// MfaChallengeStore issues and verifies one-time login codes. A per-user
// pointer key tracks the current challenge so issuing a new one always
// evicts the previous: at most one challenge per user is live.
type MfaChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewMfaChallengeStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *MfaChallengeStore {
	if prefix == "" {
		prefix = "mfa"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MfaChallengeStore{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *MfaChallengeStore) key(tokenDigest string) string {
	return s.prefix + ":challenge:" + tokenDigest
}

func (s *MfaChallengeStore) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

// CreateChallenge generates a fresh opaque token and numeric code for
// userID, replacing any challenge already outstanding. It returns the raw
// token and the plaintext code; the caller delivers the code out of band
// and hands the token to the client.
func (s *MfaChallengeStore) CreateChallenge(ctx context.Context, userID string) (rawToken, code string, err error) {
	// Evict the previous challenge via the pointer key.
	oldDigest, err := s.redis.Get(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", "", fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	if oldDigest != "" {
		if err := s.redis.Del(ctx, s.key(oldDigest)).Err(); err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
	}

	rawToken, err = opaque.NewToken()
	if err != nil {
		return "", "", err
	}
	code, err = opaque.NewNumericCode(mfaCodeLength)
	if err != nil {
		return "", "", err
	}

	now := s.now()
	record := MfaChallenge{
		UserID:     userID,
		CodeDigest: opaque.Digest(code),
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(s.ttl).Unix(),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return "", "", err
	}

	digest := opaque.Digest(rawToken)
	if err := s.redis.Set(ctx, s.key(digest), encoded, s.ttl).Err(); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	if err := s.redis.Set(ctx, s.userKey(userID), digest, s.ttl).Err(); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return rawToken, code, nil
}

// VerifyChallenge checks code against the challenge addressed by rawToken.
// On success both the challenge and its pointer entry are deleted, so a
// code verifies at most once.
func (s *MfaChallengeStore) VerifyChallenge(ctx context.Context, rawToken, code, userID string) error {
	digest := opaque.Digest(rawToken)

	data, err := s.redis.Get(ctx, s.key(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrChallengeNotFound
		}
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}

	var record MfaChallenge
	if err := json.Unmarshal(data, &record); err != nil {
		_, _ = s.redis.Del(ctx, s.key(digest)).Result()
		return ErrChallengeNotFound
	}
	if s.now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(digest)).Result()
		return ErrChallengeNotFound
	}
	if record.UserID != userID {
		return ErrChallengeUserMismatch
	}
	if !opaque.Equal(opaque.Digest(code), record.CodeDigest) {
		return ErrChallengeCodeInvalid
	}

	if err := s.redis.Del(ctx, s.key(digest), s.userKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}
