package api

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"FinCast/internal/service/ratelimit"
	xhttp "FinCast/pkg/http"
)

// RateLimit throttles requests per client IP. A nil limiter lets everything through.
func RateLimit(l *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil {
				return next(c)
			}
			ip := c.RealIP()
			if l.Allow(ip) {
				return next(c)
			}
			wait := math.Ceil(l.RetryAfter(ip).Seconds())
			if wait < 1 {
				wait = 1
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(wait)))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("Too many requests"))
		}
	}
}
