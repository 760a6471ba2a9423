package api

import (
	"SignalBoard/internal/service/ratelimit"
	xhttp "SignalBoard/pkg/http"
	xlogger "SignalBoard/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RateLimit throttles each client IP per route with a token bucket.
func RateLimit(rl *ratelimit.Limiter, burst, perSecond float64, l *xlogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP() + ":" + c.Path()
			if !rl.Allow(key, burst, perSecond) {
				l.Warn("rate limited", xlogger.String("remote", c.RealIP()), xlogger.String("route", c.Path()))
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many requests"))
			}
			return next(c)
		}
	}
}
