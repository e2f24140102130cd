package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"api-gateway-go/internal/config"
	"api-gateway-go/internal/metrics"
)

func servicePrefix(name string) string {
	return "/api/" + name
}

// RegisterRoutes wires all route handlers onto the Echo instance. Every
// declared service gets its prefix routed, including services without an
// upstream, which answer 503. m may be nil when metrics are disabled.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/", health.Root)
	e.GET("/health", health.Health)
	e.GET("/api", health.Docs)

	for _, name := range cfg.ServiceNames() {
		prefix := servicePrefix(name)
		handle := proxy.Service(name)
		// The first two never carry both segments and answer 400.
		e.Any(prefix, handle)
		e.Any(prefix+"/:domain", handle)
		e.Any(prefix+"/:domain/*", handle)
	}

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
