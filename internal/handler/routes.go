package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes wires the admin surface's route handlers onto the Echo
// instance: liveness, connection-counter status, and a Prometheus
// scrape endpoint at the configured path.
func RegisterRoutes(e *echo.Echo, health *HealthHandler, status *StatusHandler, registry *prometheus.Registry, metricsPath string) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", status.Status)

	if registry != nil {
		e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
}
