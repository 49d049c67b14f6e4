// Package httpapi exposes the authentication flows over HTTP. Handlers
// translate transport only: cookies in, JSON out, and the flow service's
// error taxonomy mapped onto status codes.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mercuryim/authd/internal/flows"
	"github.com/mercuryim/authd/internal/metrics"
	"github.com/mercuryim/authd/internal/session"
)

// Config holds the HTTP surface's knobs.
type Config struct {
	// Production turns on Secure cookies.
	Production bool
	// TempSessionTTL bounds the temp login cookie.
	TempSessionTTL time.Duration
	// MFAChallengeTTL bounds the challenge cookie, matching the Redis
	// record's lifetime.
	MFAChallengeTTL time.Duration
}

// Server wires the flow service into a gin router.
type Server struct {
	svc     *flows.Service
	metrics *metrics.Metrics
	cfg     Config
	log     *slog.Logger
}

func NewServer(svc *flows.Service, m *metrics.Metrics, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{svc: svc, metrics: m, cfg: cfg, log: log}
}

// Router builds the route table.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestContext())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	auth := r.Group("/auth")
	{
		auth.POST("/login", s.handleLogin)
		auth.POST("/mfa/challenge", s.handleMFAChallenge)
		auth.POST("/mfa/verify", s.handleMFAVerify)
		auth.POST("/refresh", s.handleRefresh)
		auth.GET("/introspect", s.handleIntrospect)

		authed := auth.Group("")
		authed.Use(s.requireSession())
		authed.POST("/logout", s.handleLogout)
		authed.POST("/logout-others", s.handleLogoutOthers)
		authed.POST("/logout-all", s.handleLogoutAll)
		authed.GET("/sessions", s.handleListSessions)
		authed.DELETE("/sessions/:id", s.handleRevokeSession)
	}

	return r
}

// writeError maps flow errors onto status codes. Internal failures never
// leak detail to the client.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, flows.ErrInvalidCredentials),
		errors.Is(err, flows.ErrMFASessionInvalid),
		errors.Is(err, flows.ErrChallengeInvalid),
		errors.Is(err, session.ErrSessionInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, flows.ErrAccountNotUsable):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, flows.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
