package request_tracking

import (
	"log/slog"

	"github.com/eternisai/chat-relay/internal/errors"
	"github.com/eternisai/chat-relay/internal/logger"
	"github.com/eternisai/chat-relay/internal/session"
	"github.com/gin-gonic/gin"
)

// ThrottleMiddleware rejects chat turns from sessions over their rate with a 429.
// It must run after the session middleware.
func ThrottleMiddleware(svc *Service, log *logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("request_tracking")

	return func(c *gin.Context) {
		sessionID := session.ID(c)
		if sessionID == "" || !svc.Enabled() {
			c.Next()
			return
		}

		allowed, retryAt := svc.Allow(sessionID)
		if !allowed {
			log.WithContext(c.Request.Context()).Warn("chat turn throttled",
				slog.Int("limit_per_minute", svc.Limit()),
				slog.Time("retry_at", retryAt))
			errors.AbortWithRateLimit(c, errors.SessionThrottled(svc.Limit(), retryAt))
			return
		}

		c.Next()
	}
}
