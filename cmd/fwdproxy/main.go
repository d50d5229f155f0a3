package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"golang.org/x/time/rate"

	"fwdproxy-go/internal/acl"
	"fwdproxy-go/internal/anonymous"
	"fwdproxy-go/internal/config"
	"fwdproxy-go/internal/dialer"
	"fwdproxy-go/internal/filter"
	"fwdproxy-go/internal/handler"
	"fwdproxy-go/internal/metrics"
	"fwdproxy-go/internal/middleware"
	"fwdproxy-go/internal/model"
	"fwdproxy-go/internal/pipeline"
	"fwdproxy-go/internal/stats"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("fwdproxy"),
		kong.Description("HTTP/1.0 forward proxy."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			newACL,
			newFilter,
			newAnonymous,
			metrics.New,
			newDialer,
			newCounters,
			newSnapshot,
			newPipelineServer,
			newAdminEcho,
			handler.NewHealthHandler,
			handler.NewStatusHandler,
		),
		fx.Invoke(
			registerRoutes,
			warnConfigPermissions,
			startProxyServer,
			startAdminServer,
		),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newACL(cfg *config.Config) (*acl.List, error) {
	l, err := acl.New(cfg.ACL.Rules)
	if err != nil {
		return nil, fmt.Errorf("acl: %w", err)
	}
	return l, nil
}

func newFilter(cfg *config.Config) (*filter.Filter, error) {
	f, err := filter.New(cfg.Filter.Enabled, cfg.Filter.Patterns)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return f, nil
}

func newAnonymous(cfg *config.Config) *anonymous.Policy {
	return anonymous.New(cfg.Anonymous.Enabled, cfg.Anonymous.AllowedHeader)
}

func newDialer(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *dialer.Dialer {
	return dialer.New(cfg.Server.ConnectTimeout(), logger, m)
}

func newCounters(m *metrics.Metrics) *stats.Counters {
	return stats.New(m)
}

func newSnapshot(cfg *config.Config) *model.Snapshot {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = cfg.Server.PackageName
	}
	return &model.Snapshot{
		PackageName:  cfg.Server.PackageName,
		Version:      cfg.Server.Version,
		Hostname:     hostname,
		IdleTimeout:  cfg.Server.IdleTimeout(),
		UpstreamHost: cfg.Upstream.Host,
		UpstreamPort: uint16(cfg.Upstream.Port),
		TunnelHost:   cfg.Tunnel.Host,
		TunnelPort:   uint16(cfg.Tunnel.Port),
		StatHost:     cfg.Server.StatHost,
		MyDomain:     cfg.Server.MyDomain,
	}
}

// acceptRateLimit and acceptBurst bound how fast the raw proxy listener
// hands accepted sockets to workers, independent of the admin surface's
// Echo-level limiter.
const (
	acceptRateLimit = 500
	acceptBurst     = 100
)

// newPipelineServer assembles the connection pipeline's collaborators.
// It takes *metrics.Metrics concretely (rather than pipeline's
// relay.BytesRecorder interface) so fx can resolve it from the same
// provider that satisfies newDialer, since fx matches constructor
// parameters by concrete type.
func newPipelineServer(snap *model.Snapshot, aclList *acl.List, f *filter.Filter, anon *anonymous.Policy, d *dialer.Dialer, counters *stats.Counters, logger *slog.Logger, m *metrics.Metrics) *pipeline.Server {
	limiter := rate.NewLimiter(rate.Limit(acceptRateLimit), acceptBurst)
	return pipeline.New(snap, aclList, f, anon, d, counters, logger, m, limiter)
}

func newAdminEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 10 * time.Second
	e.Server.IdleTimeout = 60 * time.Second
	e.Server.ReadHeaderTimeout = 5 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.MetricsMiddleware(m))

	// The admin surface exposes health, status and metrics only; a low,
	// fixed limit keeps it from becoming a secondary attack surface.
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(20))
	e.Use(echomw.RateLimiter(store))

	return e
}

// registerRoutes wires the admin surface's routes, only exposing the
// Prometheus handler when metrics are enabled in config.
func registerRoutes(cfg *config.Config, e *echo.Echo, health *handler.HealthHandler, status *handler.StatusHandler, m *metrics.Metrics) {
	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = m.Registry
	}
	handler.RegisterRoutes(e, health, status, registry, cfg.Metrics.Path)
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

// startProxyServer binds the forward-proxy listener and drives the
// connection pipeline until fx stops the application.
func startProxyServer(lc fx.Lifecycle, srv *pipeline.Server, cfg *config.Config, logger *slog.Logger) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind proxy listener %s: %w", addr, err)
			}
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			logger.Info("starting forward proxy", "addr", addr)
			go func() {
				if err := srv.Serve(ctx, ln); err != nil {
					logger.Error("proxy listener error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			logger.Info("stopping forward proxy")
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}

// startAdminServer binds the health/status/metrics HTTP surface,
// separate from the proxy listener so an overloaded proxy port never
// starves observability traffic.
func startAdminServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Admin.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind admin listener %s: %w", addr, err)
			}
			logger.Info("starting admin server", "addr", addr)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("admin server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down admin server")
			return e.Shutdown(ctx)
		},
	})
}
