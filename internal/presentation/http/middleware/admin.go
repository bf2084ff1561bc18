package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cursedboard/cursedboard-go/internal/infrastructure/security"
	"github.com/cursedboard/cursedboard-go/pkg/config"
)

// AdminMiddleware guards the admin API with a bearer token. Rejects
// everything when no admin secret is configured.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.AdminSecret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin API disabled"})
			return
		}

		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if _, err := security.ValidateAdminJWT(token, config.AdminSecret); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Next()
	}
}
