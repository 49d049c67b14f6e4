package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mercuryim/authd/internal/requestctx"
	"github.com/mercuryim/authd/internal/token"
)

const claimsKey = "authd.claims"

// requestContext captures the client's network identity once per request
// and threads it through the request context for the flows.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := requestctx.Snapshot{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		c.Request = c.Request.WithContext(requestctx.With(c.Request.Context(), snap))
		c.Next()
	}
}

// accessToken pulls the access token from the cookie or, failing that, a
// bearer header.
func accessToken(c *gin.Context) string {
	if value, err := c.Cookie(cookieAccess); err == nil && value != "" {
		return value
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// requireSession authenticates the request and parks the verified claims in
// the gin context.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := accessToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := s.svc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			c.Abort()
			s.writeError(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func sessionClaims(c *gin.Context) *token.Claims {
	claims, _ := c.MustGet(claimsKey).(*token.Claims)
	return claims
}
