package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	UserIDKey = "user_id"
	RolesKey  = "roles"
)

// Middleware validates the bearer token on every HTTP request and injects
// the caller's identity into the gin context for downstream handlers.
// Login and register routes are mounted outside the protected group.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			// WebSocket upgrades from browsers cannot set headers; the
			// token rides in the query string there.
			header = "Bearer " + c.Query("token")
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token is missing"})
			return
		}

		claims, err := ValidateToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RolesKey, claims.Roles)
		c.Next()
	}
}

// UserID extracts the authenticated caller from the gin context.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
