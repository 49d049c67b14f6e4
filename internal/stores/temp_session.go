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
	ErrTempSessionNotFound = errors.New("temp login session not found")
	ErrTempSessionBackend  = errors.New("temp login session backend unavailable")
)

// TempSession carries a password-verified identity across the MFA step.
// LoginRateLimitKey remembers the counter charged during the password check
// so it can be forgiven once the second factor succeeds.
type TempSession struct {
	UserID            string `json:"user_id"`
	Email             string `json:"email"`
	Role              string `json:"role"`
	LoginRateLimitKey string `json:"login_rate_limit_key"`
	IP                string `json:"ip,omitempty"`
	UserAgent         string `json:"user_agent,omitempty"`
}

// TempSessionStore keeps TempSession records in Redis under opaque token
// digests with a short TTL. Expiry of the record is the only way a pending
// login leaves the MFA state without completing it.
type TempSessionStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewTempSessionStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *TempSessionStore {
	if prefix == "" {
		prefix = "tls"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TempSessionStore{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *TempSessionStore) key(tokenDigest string) string {
	return s.prefix + ":" + tokenDigest
}

// Create stores the record and returns the raw opaque token handed to the
// client as its MFA state handle.
func (s *TempSessionStore) Create(ctx context.Context, record *TempSession) (string, error) {
	rawToken, err := opaque.NewToken()
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, s.key(opaque.Digest(rawToken)), encoded, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTempSessionBackend, err)
	}
	return rawToken, nil
}

// Get resolves a raw token to its pending login record.
func (s *TempSessionStore) Get(ctx context.Context, rawToken string) (*TempSession, error) {
	data, err := s.redis.Get(ctx, s.key(opaque.Digest(rawToken))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTempSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTempSessionBackend, err)
	}

	var record TempSession
	if err := json.Unmarshal(data, &record); err != nil {
		_, _ = s.redis.Del(ctx, s.key(opaque.Digest(rawToken))).Result()
		return nil, ErrTempSessionNotFound
	}
	return &record, nil
}

// Delete removes the record. Deleting an absent record is not an error.
func (s *TempSessionStore) Delete(ctx context.Context, rawToken string) error {
	if err := s.redis.Del(ctx, s.key(opaque.Digest(rawToken))).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTempSessionBackend, err)
	}
	return nil
}
