package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/talechto/internal/identity"
	obscontext "github.com/smallbiznis/talechto/internal/observability/context"
)

const (
	contextPrincipalIDKey = "principal_id"
	contextFormatKey      = "target_format"

	HeaderRemainingCredits = "X-Remaining-Credits"
)

// CORS answers preflights with 204 and decorates every other response.
// Credentials are only allowed for the configured frontend origin.
func CORS(frontendOrigin string) gin.HandlerFunc {
	frontendOrigin = strings.TrimRight(strings.TrimSpace(frontendOrigin), "/")
	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")
		if origin != "" && origin == frontendOrigin {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		h.Set("Access-Control-Expose-Headers", "Content-Disposition, "+HeaderRemainingCredits+", X-Request-Id")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func identityRequest(c *gin.Context) identity.Request {
	return identity.Request{
		CookieHeader:  c.GetHeader("Cookie"),
		Authorization: c.GetHeader("Authorization"),
		RemoteAddr:    c.ClientIP(),
	}
}

// resolvePrincipal meters the caller and tags the request context with it.
func (s *Server) resolvePrincipal(c *gin.Context) (string, error) {
	principalID, err := s.resolver.Resolve(c.Request.Context(), identityRequest(c))
	if err != nil {
		return "", err
	}
	s.bindPrincipal(c, principalID)
	return principalID, nil
}

// authenticatedPrincipal only accepts a valid session credential.
func (s *Server) authenticatedPrincipal(c *gin.Context) (string, bool) {
	principalID, ok := s.resolver.AuthenticatedPrincipal(c.Request.Context(), identityRequest(c))
	if !ok {
		return "", false
	}
	s.bindPrincipal(c, principalID)
	return principalID, true
}

func (s *Server) bindPrincipal(c *gin.Context, principalID string) {
	c.Set(contextPrincipalIDKey, principalID)
	c.Request = c.Request.WithContext(obscontext.WithPrincipalID(c.Request.Context(), principalID))
}

func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := s.authenticatedPrincipal(c); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principalID := c.GetString(contextPrincipalIDKey)
		if principalID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authz.Authorize(c.Request.Context(), principalID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
