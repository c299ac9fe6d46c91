package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole admits callers holding any of roles. Admins pass every check.
// A request with no roles at all never reached an auth middleware and gets
// 401 rather than 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	denied := "this action needs the " + strings.Join(roles, " or ") + " role"
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if len(RolesFromContext(ctx)) == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "no staff identity on request")
			}
			for _, r := range roles {
				if HasRole(ctx, r) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, denied)
		}
	}
}
