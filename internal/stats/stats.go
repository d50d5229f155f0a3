// Package stats implements the update_stats/showstats collaborators: a
// set of connection-outcome counters and a synthetic HTML status page
// served to clients that request the configured stathost.
package stats

import (
	"fmt"
	"sync/atomic"

	"fwdproxy-go/internal/model"
)

// ConnMetrics is the subset of internal/metrics.Metrics that mirrors
// Counters onto Prometheus, kept as an interface so this package does not
// import metrics directly and tests can supply a no-op implementation.
type ConnMetrics interface {
	IncConnectionsAccepted()
	IncConnectionsDenied()
	IncConnectionsBadConn()
	IncConnectionsTunneled()
}

// Counters are safe for concurrent increment from every worker goroutine.
// An optional ConnMetrics mirrors every increment onto Prometheus, letting
// callers keep using the same Counters API the HTML status page reads
// from without duplicating call sites.
type Counters struct {
	requests    atomic.Uint64
	denied      atomic.Uint64
	badConn     atomic.Uint64
	refused     atomic.Uint64
	tunnelConns atomic.Uint64
	accepted    atomic.Uint64

	metrics ConnMetrics
}

// New builds a Counters instance. m may be nil to disable Prometheus mirroring.
func New(m ConnMetrics) *Counters {
	return &Counters{metrics: m}
}

// IncAccepted records a connection handed to a worker (STAT_ACCEPTED).
func (c *Counters) IncAccepted() {
	c.accepted.Add(1)
	if c.metrics != nil {
		c.metrics.IncConnectionsAccepted()
	}
}

// IncRequests records a request that reached the relay stage.
func (c *Counters) IncRequests() { c.requests.Add(1) }

// IncDenied records an ACL or filter refusal (STAT_DENIED).
func (c *Counters) IncDenied() {
	c.denied.Add(1)
	if c.metrics != nil {
		c.metrics.IncConnectionsDenied()
	}
}

// IncBadConn records a malformed request or upstream failure (STAT_BADCONN).
func (c *Counters) IncBadConn() {
	c.badConn.Add(1)
	if c.metrics != nil {
		c.metrics.IncConnectionsBadConn()
	}
}

// IncRefused records a connection refused before any processing.
func (c *Counters) IncRefused() { c.refused.Add(1) }

// IncTunnelConns records a connection redirected through the fixed tunnel.
func (c *Counters) IncTunnelConns() {
	c.tunnelConns.Add(1)
	if c.metrics != nil {
		c.metrics.IncConnectionsTunneled()
	}
}

// Snapshot is a point-in-time, race-free read of every counter.
type Snapshot struct {
	Requests    uint64
	Denied      uint64
	BadConn     uint64
	Refused     uint64
	TunnelConns uint64
	Accepted    uint64
}

// Snapshot reads all counters atomically relative to each other's field.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Requests:    c.requests.Load(),
		Denied:      c.denied.Load(),
		BadConn:     c.badConn.Load(),
		Refused:     c.refused.Load(),
		TunnelConns: c.tunnelConns.Load(),
		Accepted:    c.accepted.Load(),
	}
}

const statusPageTemplate = `<html><head><title>%s Statistics</title></head>
<body>
<h1>%s Statistics</h1>
<table>
<tr><td>Requests</td><td>%d</td></tr>
<tr><td>Denied</td><td>%d</td></tr>
<tr><td>Bad Connections</td><td>%d</td></tr>
<tr><td>Refused</td><td>%d</td></tr>
<tr><td>Tunneled</td><td>%d</td></tr>
<tr><td>Accepted</td><td>%d</td></tr>
</table>
</body></html>
`

// ShowStats renders a 200 OK HTML page describing snap to conn.Client and
// marks conn's response-already-sent latch, matching showstats(conn) in
// spec.md §6.
func ShowStats(conn *model.Connection, snap Snapshot, packageName string) error {
	body := fmt.Sprintf(statusPageTemplate, packageName, packageName,
		snap.Requests, snap.Denied, snap.BadConn, snap.Refused, snap.TunnelConns, snap.Accepted)

	resp := fmt.Sprintf(
		"HTTP/1.0 200 OK\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		len(body), body,
	)

	_, err := conn.Client.Write([]byte(resp))
	conn.MarkResponseSent()
	return err
}
