package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/connected/common/ratelimit"
)

// UserRateLimitMiddleware checks per-user limits for one action
// Requires the identity to be set in context by the auth middleware
func UserRateLimitMiddleware(limiter ratelimit.Limiter, policy ratelimit.Policy, logger ratelimit.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := Identity(c)
			if userID == "" {
				return next(c)
			}

			result, err := limiter.CheckUserLimit(c.Request().Context(), userID, policy)
			if err != nil {
				// fail open for availability
				logger.Warn("rate limit unavailable, allowing request", "user_id", userID, "action", policy.Action, "error", err)
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "user_rate_limit_exceeded",
					"message": "You have exceeded your request quota. Please wait before trying again.",
					"details": map[string]interface{}{
						"action":              policy.Action,
						"limit":               result.Limit,
						"window":              fmt.Sprintf("%d seconds", policy.WindowSeconds),
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
