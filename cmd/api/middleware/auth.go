package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// UsernameKey is the context key for the authenticated username
const UsernameKey ContextKey = "username"

// RequireUser extracts the X-User-ID header and stores it in the
// request context. Requests without it are rejected; every read in
// the API is scoped to the workflow owner.
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.Request().Header.Get("X-User-ID")
			if username == "" {
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"error": "X-User-ID header is required",
				})
			}

			c.Set(string(UsernameKey), username)
			return next(c)
		}
	}
}

// GetUsername returns the authenticated username from the context
func GetUsername(c echo.Context) string {
	if v, ok := c.Get(string(UsernameKey)).(string); ok {
		return v
	}
	return ""
}
