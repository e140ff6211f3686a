package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// SecretMiddleware authenticates scheduler-triggered requests with a shared
// bearer secret. An empty configured secret rejects everything: the trigger
// endpoint must be explicitly enabled.
func SecretMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "cron secret not configured"})
			}
			auth := strings.TrimSpace(c.Request().Header.Get("Authorization"))
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}
