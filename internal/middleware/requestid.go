package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ContextKeyRequestID is the echo.Context key holding the request id.
const ContextKeyRequestID = "request_id"

// NewRequestID returns an id of the form req_<unix-ms>_<9 hex chars>.
func NewRequestID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return "req_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + suffix
}

// RequestID assigns every request a fresh id, stores it on the context and
// sets it on the response. An inbound X-Request-Id is ignored.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := NewRequestID()
			c.Set(ContextKeyRequestID, id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// GetRequestID returns the id assigned by RequestID, or "" outside of it.
func GetRequestID(c echo.Context) string {
	id, _ := c.Get(ContextKeyRequestID).(string)
	return id
}
