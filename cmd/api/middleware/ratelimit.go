package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/agentflow/common/config"
	"github.com/lyzr/agentflow/common/ratelimit"
)

// RateLimitExecutions throttles run-starting endpoints. The global
// window is checked first, then the per-user window. A limiter error
// fails open so Redis trouble never blocks executions.
func RateLimitExecutions(limiter *ratelimit.Limiter, cfg config.RateLimitConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Enabled {
				return next(c)
			}

			ctx := c.Request().Context()

			global, err := limiter.CheckGlobal(ctx, cfg.GlobalLimit, cfg.WindowSeconds)
			if err == nil && !global.Allowed {
				return tooManyRequests(c, "global_rate_limit_exceeded", global)
			}

			username := GetUsername(c)
			if username == "" {
				return next(c)
			}

			user, err := limiter.CheckUser(ctx, username, cfg.UserLimit, cfg.WindowSeconds)
			if err == nil && !user.Allowed {
				return tooManyRequests(c, "user_rate_limit_exceeded", user)
			}

			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, code string, result *ratelimit.Result) error {
	return c.JSON(http.StatusTooManyRequests, map[string]any{
		"error":               code,
		"limit":               result.Limit,
		"current_count":       result.CurrentCount,
		"retry_after_seconds": result.RetryAfterSeconds,
	})
}
