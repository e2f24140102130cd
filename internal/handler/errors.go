package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"api-gateway-go/internal/config"
	"api-gateway-go/internal/middleware"
)

// isoMillis matches the millisecond UTC timestamps clients already parse.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// ErrorResponse is the body of every gateway-generated error. Proxied
// upstream responses are never wrapped in it.
type ErrorResponse struct {
	Error             string   `json:"error"`
	Message           string   `json:"message"`
	Timestamp         string   `json:"timestamp"`
	Path              string   `json:"path,omitempty"`
	RequestID         string   `json:"requestId,omitempty"`
	Service           string   `json:"service,omitempty"`
	AvailableServices []string `json:"availableServices,omitempty"`
	Details           string   `json:"details,omitempty"`
}

func newErrorResponse(status int, message string) ErrorResponse {
	return ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: time.Now().UTC().Format(isoMillis),
	}
}

func writeError(c echo.Context, status int, body ErrorResponse) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.JSON(status, body)
}

// ErrorHandler is the central echo.HTTPErrorHandler. Router misses become
// the catch-all Not Found payload, framework errors keep their status, and
// everything else is a 500.
type ErrorHandler struct {
	prefixes []string
	debug    bool
	logger   *slog.Logger
}

// NewErrorHandler creates an ErrorHandler.
func NewErrorHandler(cfg *config.Config, logger *slog.Logger) *ErrorHandler {
	names := cfg.ServiceNames()
	prefixes := make([]string, 0, len(names))
	for _, name := range names {
		prefixes = append(prefixes, servicePrefix(name))
	}
	return &ErrorHandler{
		prefixes: prefixes,
		debug:    cfg.Server.Debug,
		logger:   logger.With("component", "error_handler"),
	}
}

// Handle implements echo.HTTPErrorHandler.
func (h *ErrorHandler) Handle(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code == http.StatusNotFound || he.Code == http.StatusMethodNotAllowed {
			body := newErrorResponse(http.StatusNotFound, "The requested endpoint was not found")
			body.Path = c.Request().URL.Path
			body.AvailableServices = h.prefixes
			h.write(c, http.StatusNotFound, body)
			return
		}

		body := newErrorResponse(he.Code, fmt.Sprint(he.Message))
		body.Path = c.Request().URL.Path
		body.RequestID = middleware.GetRequestID(c)
		h.write(c, he.Code, body)
		return
	}

	h.logger.Error("unhandled error",
		"err", err,
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"request_id", middleware.GetRequestID(c),
	)

	body := newErrorResponse(http.StatusInternalServerError, "An unexpected error occurred")
	body.RequestID = middleware.GetRequestID(c)
	if h.debug {
		body.Details = err.Error()
	}
	h.write(c, http.StatusInternalServerError, body)
}

func (h *ErrorHandler) write(c echo.Context, status int, body ErrorResponse) {
	if err := writeError(c, status, body); err != nil {
		h.logger.Error("writing error response", "err", err)
	}
}
