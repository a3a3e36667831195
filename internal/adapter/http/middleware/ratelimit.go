package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	domain "github.com/npquoc/mallcore/internal/entity"
	"github.com/npquoc/mallcore/internal/logging"
	"github.com/npquoc/mallcore/internal/ratelimit"
)

// RateLimit gates a route through the admission counter before any work
// begins. Caller identity is the authenticated subject when present, the
// client IP otherwise.
func RateLimit(gate *ratelimit.Gate, rule ratelimit.Rule) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString(CallerKey)
		if caller == "" {
			caller = c.ClientIP()
		}

		err := gate.Admit(c.Request.Context(), rule, caller)
		if err == nil {
			c.Next()
			return
		}
		if errors.Is(err, domain.ErrRateLimited) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":               "too_many_requests",
				"retry_after_seconds": int(rule.Window.Seconds()),
			})
			return
		}
		// counter backend trouble: fail open, admission control is not
		// worth a full outage
		logging.From(c).Error("rate gate", "rule", rule.Name, "err", err)
		c.Next()
	}
}
