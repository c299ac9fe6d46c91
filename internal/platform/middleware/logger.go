package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

// Logger writes one line per request. Client errors log at warn with the
// classified cause; 5xx log at error.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status, cause := c.Response().Status, err
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
				if he.Internal != nil {
					cause = he.Internal
				}
			}

			var evt *zerolog.Event
			switch {
			case err == nil:
				evt = logger.Info()
			case status >= 500:
				evt = logger.Error().Err(cause)
			default:
				evt = logger.Warn().Err(cause)
			}

			ctx := c.Request().Context()
			rid, _ := c.Get("request_id").(string)
			evt.Str("request_id", rid).
				Str("staff_id", auth.UserIDFromContext(ctx)).
				Str("roles", strings.Join(auth.RolesFromContext(ctx), ",")).
				Str("method", c.Request().Method).
				Str("route", c.Path()).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return err
		}
	}
}
