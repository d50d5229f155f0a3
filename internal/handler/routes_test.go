package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"fwdproxy-go/internal/config"
	"fwdproxy-go/internal/stats"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{PackageName: "fwdproxy"}}
	health := NewHealthHandler(cfg, "test")
	status := NewStatusHandler(cfg, &stats.Counters{}, "test")
	registry := prometheus.NewRegistry()

	e := echo.New()
	RegisterRoutes(e, health, status, registry, "/metrics")

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /proxy/status", http.MethodGet, "/proxy/status", http.StatusOK},
		{"GET /metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"GET /unknown returns 404", http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_NilRegistrySkipsMetricsRoute(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{PackageName: "fwdproxy"}}
	health := NewHealthHandler(cfg, "test")
	status := NewStatusHandler(cfg, &stats.Counters{}, "test")

	e := echo.New()
	RegisterRoutes(e, health, status, nil, "/metrics")

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d when registry is nil", rec.Code, http.StatusNotFound)
	}
}
