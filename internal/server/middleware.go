package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shellbound/focuscircle/internal/identity"
)

const identityContextKey = "focuscircle.identity"

// AuthMiddleware resolves the bearer credential and stashes the caller
// identity for handlers. Requests without a valid token never reach a
// handler.
func (s *Server) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		caller, err := s.resolver.Resolve(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(identityContextKey, caller)
		c.Next()
	}
}

func callerIdentity(c *gin.Context) (identity.Identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return identity.Identity{}, false
	}
	caller, ok := value.(identity.Identity)
	return caller, ok
}
