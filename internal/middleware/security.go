package middleware

import (
	"github.com/labstack/echo/v4"

	"api-gateway-go/internal/service"
)

// SecurityHeaders returns an Echo middleware that adds nosniff and
// frame-deny headers to responses the gateway generates itself. Proxied
// upstream responses pass through with their own header set.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			res.Before(func() {
				h := res.Header()
				if h.Get(service.HeaderProxiedBy) != "" {
					return
				}
				if h.Get(echo.HeaderXContentTypeOptions) == "" {
					h.Set(echo.HeaderXContentTypeOptions, "nosniff")
				}
				if h.Get(echo.HeaderXFrameOptions) == "" {
					h.Set(echo.HeaderXFrameOptions, "DENY")
				}
			})
			return next(c)
		}
	}
}
