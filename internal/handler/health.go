package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"api-gateway-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

const gatewayName = "api-gateway"

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
	Gateway   string   `json:"gateway"`
	Version   string   `json:"version"`
	Services  []string `json:"services"`
}

// ServiceDoc describes one routed service in the /api documentation.
type ServiceDoc struct {
	Service     string `json:"service"`
	Prefix      string `json:"prefix"`
	Description string `json:"description"`
	Pattern     string `json:"pattern"`
	Example     string `json:"example"`
}

// HealthHandler serves the health, documentation and welcome endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Health reports liveness and the declared services.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(isoMillis),
		Gateway:   gatewayName,
		Version:   string(h.version),
		Services:  h.cfg.ServiceNames(),
	})
}

// Docs lists the routed services and how to call them.
func (h *HealthHandler) Docs(c echo.Context) error {
	names := h.cfg.ServiceNames()
	services := make([]ServiceDoc, 0, len(names))
	for _, name := range names {
		prefix := servicePrefix(name)
		services = append(services, ServiceDoc{
			Service:     name,
			Prefix:      prefix,
			Description: h.cfg.Services[name].Description,
			Pattern:     prefix + "/:domain/:function",
			Example:     prefix + "/auth/login",
		})
	}

	examples := make([]string, 0, len(services))
	for _, s := range services {
		examples = append(examples, s.Prefix+"/user/profile")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"name":        "API Gateway",
		"version":     string(h.version),
		"description": "Central API Gateway for microservices",
		"endpoints": map[string]any{
			"health":        "/health",
			"documentation": "/api",
			"services":      services,
		},
		"usage": map[string]any{
			"pattern":  "/api/{service}/{domain}/{function}",
			"methods":  h.cfg.CORS.AllowMethods,
			"examples": examples,
		},
	})
}

// Root is the welcome payload.
func (h *HealthHandler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message":       "Welcome to API Gateway",
		"version":       string(h.version),
		"documentation": "/api",
		"health":        "/health",
	})
}
