package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const authTokenContextKey = "auth_token"

// Middleware captures the caller's bearer token, if any, into the context.
// Anonymous requests pass through.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authToken := s.extractToken(c); authToken != "" {
			c.Set(authTokenContextKey, authToken)
		}
		c.Next()
	}
}

// AuthTokenFromContext retrieves the bearer token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok && token != ""
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token
	}
	return ""
}
