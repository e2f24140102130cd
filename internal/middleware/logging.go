// Package middleware provides Echo middleware for request ids, logging,
// CORS, security headers and metrics.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger returns an Echo middleware that logs each request with slog
// when it arrives and when it completes. Errors returned by the chain are
// rendered here so the logged status is the one the client sees.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			logger.Info("request received",
				"method", req.Method,
				"path", req.URL.Path,
				"request_id", GetRequestID(c),
				"remote_ip", c.RealIP(),
				"user_agent", req.UserAgent(),
			)

			if err := next(c); err != nil {
				c.Error(err)
			}

			res := c.Response()
			logger.Info("request completed",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", GetRequestID(c),
				"bytes_out", res.Size,
			)

			return nil
		}
	}
}
