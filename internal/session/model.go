// Package session holds the server-side session records that anchor every
// issued token pair. The session row is the single source of truth for
// revocation and refresh rotation; tokens are only pointers into it.
package session

import "time"

// Session is one authenticated device session. Revocation is a soft flag:
// rows are never physically deleted, so revoked sessions remain available
// for audit.
type Session struct {
	ID                 string
	UserID             string
	HashedRefreshToken string
	RefreshVersion     int
	IP                 string
	UserAgent          string
	CreatedAt          time.Time
	ExpiresAt          time.Time
	RevokedAt          *time.Time
}

// Live reports whether the session is usable at the given instant: not
// revoked and not past its expiry.
func (s *Session) Live(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
