package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mercuryim/authd/internal/session"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	pending, err := s.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.setCookie(c, cookieTempSession, pending.TempToken, s.cfg.TempSessionTTL)
	c.JSON(http.StatusOK, gin.H{"mfa_required": true})
}

func (s *Server) handleMFAChallenge(c *gin.Context) {
	tempToken, err := c.Cookie(cookieTempSession)
	if err != nil || tempToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no pending login"})
		return
	}

	challengeToken, err := s.svc.RequestChallenge(c.Request.Context(), tempToken)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.setCookie(c, cookieChallenge, challengeToken, s.cfg.MFAChallengeTTL)
	c.JSON(http.StatusOK, gin.H{"challenge_sent": true})
}

type verifyRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) handleMFAVerify(c *gin.Context) {
	tempToken, err := c.Cookie(cookieTempSession)
	if err != nil || tempToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no pending login"})
		return
	}
	challengeToken, err := c.Cookie(cookieChallenge)
	if err != nil || challengeToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no challenge issued"})
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	pair, err := s.svc.VerifyChallenge(c.Request.Context(), tempToken, challengeToken, req.Code)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.setTokenPair(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"user_id": pair.UserID,
		"email":   pair.Email,
		"role":    pair.Role,
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	refreshToken, err := c.Cookie(cookieRefresh)
	if err != nil || refreshToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no refresh token"})
		return
	}

	pair, err := s.svc.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		// Only a dead session invalidates the client's cookies. Rate
		// limits and backend hiccups leave them alone so the caller can
		// retry with the same token.
		if errors.Is(err, session.ErrSessionInvalid) {
			s.clearSessionCookies(c)
		}
		s.writeError(c, err)
		return
	}

	s.setTokenPair(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"user_id": pair.UserID,
		"email":   pair.Email,
		"role":    pair.Role,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.svc.Logout(c.Request.Context(), sessionClaims(c)); err != nil {
		s.writeError(c, err)
		return
	}
	s.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}

// handleLogoutOthers revokes every other session and keeps the caller's
// session live.
func (s *Server) handleLogoutOthers(c *gin.Context) {
	if err := s.svc.LogoutOthers(c.Request.Context(), sessionClaims(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logged_out_others": true})
}

// handleLogoutAll revokes every session of the user, current included, and
// clears the caller's cookies.
func (s *Server) handleLogoutAll(c *gin.Context) {
	claims := sessionClaims(c)
	if err := s.svc.RevokeUserSessions(c.Request.Context(), claims.UserID(), "logout_all_devices"); err != nil {
		s.writeError(c, err)
		return
	}
	s.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}

func (s *Server) handleListSessions(c *gin.Context) {
	claims := sessionClaims(c)
	sessions, err := s.svc.ListSessions(c.Request.Context(), claims.UserID(), claims.SessionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) handleRevokeSession(c *gin.Context) {
	claims := sessionClaims(c)
	if err := s.svc.RevokeSession(c.Request.Context(), claims.UserID(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

func (s *Server) handleIntrospect(c *gin.Context) {
	raw := accessToken(c)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no access token"})
		return
	}

	info, err := s.svc.Introspect(c.Request.Context(), raw)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
