// Package dialer implements the upstream connector's socket half
// (opensock): a blocking TCP dial to a host:port, instrumented with
// dial-latency metrics the way an outbound HTTP client instruments its
// upstream calls.
package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"
)

// Dialer opens TCP connections to upstream hosts, direct origins, parent
// proxies, or fixed tunnel targets alike — spec.md's opensock contract.
type Dialer struct {
	net     *net.Dialer
	logger  *slog.Logger
	metrics MetricsRecorder
}

// MetricsRecorder is the subset of internal/metrics.Metrics the dialer
// needs; kept as an interface so dialer does not import metrics directly
// and tests can supply a no-op implementation.
type MetricsRecorder interface {
	ObserveDial(outcome string, duration time.Duration)
}

// New creates a Dialer with the given connect timeout. m may be nil to
// disable metrics recording.
func New(connectTimeout time.Duration, logger *slog.Logger, m MetricsRecorder) *Dialer {
	return &Dialer{
		net: &net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		},
		logger:  logger.With("component", "dialer"),
		metrics: m,
	}
}

// Dial opens a TCP connection to host:port (opensock).
func (d *Dialer) Dial(ctx context.Context, host string, port uint16) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))

	start := time.Now()
	conn, err := d.net.DialContext(ctx, "tcp", addr)
	duration := time.Since(start)

	if err != nil {
		d.record("error", duration)
		d.logger.Warn("dial failed", "addr", addr, "err", err)
		return nil, fmt.Errorf("dialer: connect to %s: %w", addr, err)
	}

	d.record("ok", duration)
	d.logger.Debug("dial succeeded", "addr", addr, "duration_ms", duration.Milliseconds())
	return conn, nil
}

func (d *Dialer) record(outcome string, duration time.Duration) {
	if d.metrics != nil {
		d.metrics.ObserveDial(outcome, duration)
	}
}
