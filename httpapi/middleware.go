package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userKey = "user"

// requireAdmin verifies the bearer token and rejects non-admin identities.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		user, err := s.tokens.Verify(token)
		if err != nil || !user.Admin {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}
