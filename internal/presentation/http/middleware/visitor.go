package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cursedboard/cursedboard-go/internal/application/services"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
	"github.com/cursedboard/cursedboard-go/pkg/config"
)

// Context keys set by the visitor middleware.
const (
	VisitorIDKey    = "visitorID"
	RitualStateKey  = "ritualState"
	IsNewVisitorKey = "isNewVisitor"
)

// VisitorMiddleware resolves the visitor identity and runs the ritual
// pipeline for the request. Identity comes from the fingerprint header
// when present, then the cookie; a brand new visitor gets a minted ID
// set back as a cookie.
func VisitorMiddleware(engine *services.RitualEngine, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		visitorID := resolveVisitorID(c)

		state, isNew, err := engine.OnRequest(c.Request.Context(), visitorID, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			logger.Ritual().Error("Request pipeline failed",
				"visitorId", visitorID, "path", c.Request.URL.Path, "error", err.Error())
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "state unavailable"})
			return
		}

		c.Set(VisitorIDKey, visitorID)
		c.Set(RitualStateKey, state)
		c.Set(IsNewVisitorKey, isNew)
		c.Next()
	}
}

// resolveVisitorID finds or mints the visitor's stable ID.
func resolveVisitorID(c *gin.Context) string {
	if fingerprint := c.GetHeader(config.FingerprintHeader); fingerprint != "" {
		return fingerprint
	}

	if cookie, err := c.Cookie(config.CookieName); err == nil && cookie != "" {
		return cookie
	}

	visitorID := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(config.CookieName, visitorID, config.CookieMaxAge, "/", "", false, true)
	return visitorID
}

// GetVisitorID reads the visitor ID the middleware stored on the
// request context.
func GetVisitorID(c *gin.Context) string {
	return c.GetString(VisitorIDKey)
}
