package middleware // reusable HTTP middleware for the registry API

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/akarels/giftregistry/internal/auth"
)

// AdminAuth returns an Echo middleware that validates a Bearer admin
// session token.  The token is minted by the admin session endpoint after
// the shared secret check; authorization happens once at session start,
// never per claim operation.  Routes wrapped by this middleware are the
// administrative mutations only.
func AdminAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(h, "Bearer ")
			if !auth.ParseSessionToken(secret, raw) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			return next(c)
		}
	}
}
