package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"api-gateway-go/internal/middleware"
	"api-gateway-go/internal/model"
	"api-gateway-go/internal/service"
)

// ProxyHandler forwards /api/<service>/<domain>/<function> to the service's upstream.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Service returns the handler for requests routed to the named service.
func (h *ProxyHandler) Service(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return h.handle(c, name)
	}
}

func (h *ProxyHandler) handle(c echo.Context, name string) error {
	req := c.Request()

	if strings.TrimSpace(c.Param("domain")) == "" || strings.TrimSpace(c.Param("*")) == "" {
		body := newErrorResponse(http.StatusBadRequest, "Missing required parameters: domain and function")
		body.Path = req.URL.Path
		return writeError(c, http.StatusBadRequest, body)
	}

	// The route prefix is /api/<service>, so the inbound path already is
	// the upstream target path.
	target := req.URL.EscapedPath()
	if req.URL.RawQuery != "" {
		target += "?" + req.URL.RawQuery
	}

	requestID := middleware.GetRequestID(c)
	if requestID == "" {
		requestID = middleware.NewRequestID()
	}

	resp, err := h.service.Forward(&model.ProxyRequest{
		Ctx:        req.Context(),
		Method:     req.Method,
		Service:    name,
		TargetPath: target,
		Header:     req.Header,
		Body:       req.Body,
		RequestID:  requestID,
	})
	if err != nil {
		return h.mapError(c, err)
	}

	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = vals
	}
	c.Response().WriteHeader(resp.StatusCode)

	if req.Method == http.MethodHead || len(resp.Body.Data) == 0 {
		return nil
	}
	// The status is already sent; a failed write can only be logged.
	if _, err := c.Response().Write(resp.Body.Data); err != nil {
		h.logger.Error("writing response body",
			"err", err,
			"service", name,
			"path", req.URL.Path,
			"request_id", requestID,
		)
	}
	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	var pe *service.ProxyError
	if !errors.As(err, &pe) {
		return err
	}

	var (
		status  int
		message string
	)
	switch pe.Kind {
	case model.NotConfigured:
		status, message = http.StatusServiceUnavailable, "Service '"+pe.Service+"' is not configured"
	case model.Timeout:
		status, message = http.StatusGatewayTimeout, "The upstream service did not respond in time"
	default:
		status, message = http.StatusBadGateway, "Failed to reach upstream service"
	}

	h.logger.Error("proxy error",
		"err", err,
		"kind", pe.Kind.String(),
		"service", pe.Service,
		"status", status,
		"path", c.Request().URL.Path,
		"request_id", pe.RequestID,
	)

	body := newErrorResponse(status, message)
	body.RequestID = pe.RequestID
	body.Service = pe.Service
	c.Response().Header().Set(service.HeaderRequestID, pe.RequestID)
	return writeError(c, status, body)
}
