// Package token signs and verifies the access and refresh claim sets.
// Access and refresh tokens use distinct HMAC secrets and distinct TTLs so
// that a token of one kind can never verify as the other.
package token

import (
	"bytes"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned by Verify* when the token signature is
	// valid but the token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for any other verification failure,
	// including forged or cross-kind signatures.
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims is the shared claim set carried by both token kinds. SessionID and
// RefreshVersion bind the token to a server-side session row, which remains
// the single source of truth for revocation and rotation.
type Claims struct {
	Email          string `json:"email,omitempty"`
	Role           string `json:"role,omitempty"`
	SessionID      string `json:"sid"`
	RefreshVersion int    `json:"rv"`
	jwt.RegisteredClaims
}

// UserID returns the subject user id.
func (c *Claims) UserID() string {
	return c.Subject
}

// Config holds codec secrets and lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// Codec signs and verifies access and refresh tokens.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: both access and refresh secrets are required")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: invalid leeway configuration")
	}
	return &Codec{config: cfg}, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.config.RefreshTTL }

// SignAccess issues a signed access token for claims. Registered timestamps
// are set here; any values already present in claims are overwritten.
func (c *Codec) SignAccess(claims Claims) (string, error) {
	return c.sign(claims, c.config.AccessSecret, c.config.AccessTTL)
}

// SignRefresh issues a signed refresh token for claims.
func (c *Codec) SignRefresh(claims Claims) (string, error) {
	return c.sign(claims, c.config.RefreshSecret, c.config.RefreshTTL)
}

// VerifyAccess verifies signature and expiry of an access token.
func (c *Codec) VerifyAccess(tokenStr string) (*Claims, error) {
	return c.verify(tokenStr, c.config.AccessSecret)
}

// VerifyRefresh verifies signature and expiry of a refresh token.
func (c *Codec) VerifyRefresh(tokenStr string) (*Claims, error) {
	return c.verify(tokenStr, c.config.RefreshSecret)
}

// DecodeUnverified parses claims without checking the signature. Display-only
// introspection of issued/expiry timestamps; never an authorization input.
func (c *Codec) DecodeUnverified(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (c *Codec) sign(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if c.config.Issuer != "" {
		claims.Issuer = c.config.Issuer
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(secret)
}

func (c *Codec) verify(tokenStr string, secret []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
