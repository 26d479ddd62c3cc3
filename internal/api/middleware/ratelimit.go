package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Capoen/BootcampsAPI/internal/api/respond"
	"github.com/Capoen/BootcampsAPI/internal/pkg/metrics"
	"github.com/Capoen/BootcampsAPI/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimit 按客户端 IP 限流，超限返回 429。
//
// 限流器失联时放行请求：限流是保护措施，不应该成为单点。
func RateLimit(limiter *ratelimit.Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, _, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimitRejectedTotal.Inc()
			respond.Error(c, http.StatusTooManyRequests, "Too many requests")
			return
		}
		c.Next()
	}
}
