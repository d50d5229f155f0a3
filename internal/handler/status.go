package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"fwdproxy-go/internal/config"
	"fwdproxy-go/internal/stats"
)

// StatusHandler serves a JSON view of the proxy's connection counters,
// the admin-surface counterpart of stats.ShowStats's HTML page.
type StatusHandler struct {
	cfg      *config.Config
	counters *stats.Counters
	version  Version
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(cfg *config.Config, counters *stats.Counters, v Version) *StatusHandler {
	return &StatusHandler{cfg: cfg, counters: counters, version: v}
}

// statusResponse is the JSON body served at /proxy/status.
type statusResponse struct {
	Version     string        `json:"version"`
	PackageName string        `json:"package_name"`
	Stats       stats.Snapshot `json:"stats"`
}

// Status renders the current connection counters as JSON.
func (h *StatusHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Version:     string(h.version),
		PackageName: h.cfg.Server.PackageName,
		Stats:       h.counters.Snapshot(),
	})
}
