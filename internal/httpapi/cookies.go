package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mercuryim/authd/internal/flows"
)

// Cookie names are part of the client contract.
const (
	cookieAccess      = "access_token"
	cookieRefresh     = "refresh_token"
	cookieTempSession = "temp_session_id"
	cookieChallenge   = "mfa_challenge_id"
)

func (s *Server) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   s.cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(c *gin.Context, name string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
}

// setTokenPair installs both token cookies and clears the login-flow
// bridging cookies.
func (s *Server) setTokenPair(c *gin.Context, pair *flows.TokenPair) {
	s.setCookie(c, cookieAccess, pair.AccessToken, time.Until(pair.AccessExpiresAt))
	s.setCookie(c, cookieRefresh, pair.RefreshToken, time.Until(pair.RefreshExpiresAt))
	s.clearCookie(c, cookieTempSession)
	s.clearCookie(c, cookieChallenge)
}

func (s *Server) clearSessionCookies(c *gin.Context) {
	s.clearCookie(c, cookieAccess)
	s.clearCookie(c, cookieRefresh)
}
