package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"fwdproxy-go/internal/headers"
	"fwdproxy-go/internal/httperr"
	"fwdproxy-go/internal/lineio"
	"fwdproxy-go/internal/model"
	"fwdproxy-go/internal/relay"
	"fwdproxy-go/internal/rewrite"
	"fwdproxy-go/internal/stats"
)

// worker carries the per-connection state threaded through the pipeline's
// states. It is used by exactly one goroutine and needs no synchronization
// (spec.md §5).
type worker struct {
	server *Server
	conn   *model.Connection
	reader *bufio.Reader

	req     *model.Request
	headers *model.HeaderMap
}

// run drives the connection through ACCEPTED -> ... -> TEARDOWN.
func (w *worker) run() {
	defer func() {
		if w.conn.Server != nil {
			_ = w.conn.Server.Close()
		}
	}()

	snap := w.server.Snapshot
	conn := w.conn

	if !w.server.ACL.Allow(conn.Client.RemoteAddr()) {
		w.server.Counters.IncDenied()
		_ = httperr.Forbidden(conn, "access denied by proxy ACL")
		w.drainHeaderBlock()
		return
	}

	if snap.TunnelConfigured() {
		w.runTunnel()
		return
	}

	line, err := lineio.ReadRequestLine(w.reader)
	if err != nil {
		return
	}
	conn.RequestLine = line

	parsed, err := lineio.ParseRequestLine(line)
	if err != nil {
		w.server.Counters.IncBadConn()
		_ = httperr.BadRequest(conn, err.Error())
		w.drainHeaderBlock()
		return
	}
	conn.Version = parsed.Version
	conn.ConnectMethod = parsed.ConnectMethod
	w.req = parsed.Request

	hm, err := headers.Collect(w.reader)
	if err != nil {
		// A malformed header line terminates the connection with no
		// client-visible error beyond socket close (spec.md §4.D).
		w.server.Counters.IncBadConn()
		return
	}
	w.headers = hm

	if snap.StatHost != "" && w.req.Host == snap.StatHost {
		_ = stats.ShowStats(conn, w.server.Counters.Snapshot(), snap.PackageName)
		return
	}

	if w.server.Filter.Blocked(w.req.Host) {
		w.server.Counters.IncDenied()
		_ = httperr.NotFound(conn, "domain blocked by proxy filter")
		w.drainClientHeaders()
		return
	}

	if err := w.connectUpstream(); err != nil {
		w.server.Counters.IncBadConn()
		w.drainClientHeaders()
		return
	}

	if err := w.processClientHeaders(); err != nil {
		return
	}
	if conn.ResponseSent() {
		return
	}

	if conn.ConnectMethod && !snap.UpstreamConfigured() {
		if err := relay.WriteConnectEstablished(conn, snap.PackageName, snap.Version); err != nil {
			return
		}
	} else {
		if err := rewrite.ServerHeaders(conn, conn.ServerReader); err != nil {
			return
		}
	}

	w.server.Counters.IncRequests()
	if err := relay.Relay(conn, snap.IdleTimeout, w.server.Bytes); err != nil {
		w.server.Logger.Debug("pipeline: relay ended", "remote", conn.Client.RemoteAddr(), "err", err)
	}
}

// runTunnel implements spec.md §4.F's tunnel mode: connect to the fixed
// target and relay immediately with no request-line or header parsing.
// The first client line is peeked (never consumed) for logging, matching
// the original's MSG_PEEK.
func (w *worker) runTunnel() {
	snap := w.server.Snapshot
	conn := w.conn

	if _, err := w.reader.Peek(1); err == nil {
		peek, _ := w.reader.Peek(w.reader.Buffered())
		if line := firstLine(peek); line != "" {
			w.server.Logger.Debug("pipeline: tunnel request preview", "line", line)
		}
	}

	server, err := w.server.Dialer.Dial(context.Background(), snap.TunnelHost, snap.TunnelPort)
	if err != nil {
		w.server.Counters.IncBadConn()
		_ = httperr.NotFound(conn, "tunnel target unreachable")
		return
	}
	conn.Server = server
	conn.ServerReader = bufio.NewReaderSize(server, model.MaxBuffSize)

	w.server.Counters.IncTunnelConns()
	if err := relay.Relay(conn, snap.IdleTimeout, w.server.Bytes); err != nil {
		w.server.Logger.Debug("pipeline: tunnel relay ended", "remote", conn.Client.RemoteAddr(), "err", err)
	}
}

// connectUpstream implements spec.md §4.F's upstream-proxy and direct
// modes (tunnel mode is handled separately by runTunnel).
func (w *worker) connectUpstream() error {
	snap := w.server.Snapshot
	conn := w.conn
	req := w.req

	if snap.UpstreamConfigured() {
		server, err := w.server.Dialer.Dial(context.Background(), snap.UpstreamHost, snap.UpstreamPort)
		if err != nil {
			_ = httperr.NotFound(conn, "upstream proxy unreachable")
			return err
		}
		conn.Server = server
		conn.ServerReader = bufio.NewReaderSize(server, model.MaxBuffSize)

		var path string
		if conn.ConnectMethod {
			path = fmt.Sprintf("%s:%d", req.Host, req.Port)
		} else {
			path = fmt.Sprintf("http://%s:%d%s", req.Host, req.Port, req.Path)
		}
		if _, err := fmt.Fprintf(server, "%s %s HTTP/1.0\r\n", req.Method, path); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(server, "Host: %s\r\n", req.Host); err != nil {
			return err
		}
		if _, err := server.Write([]byte("Connection: close\r\n")); err != nil {
			return err
		}
		return nil
	}

	server, err := w.server.Dialer.Dial(context.Background(), req.Host, req.Port)
	if err != nil {
		_ = httperr.InternalServerError(conn, "could not connect to origin")
		return err
	}
	conn.Server = server
	conn.ServerReader = bufio.NewReaderSize(server, model.MaxBuffSize)

	if conn.ConnectMethod {
		return nil
	}

	if _, err := fmt.Fprintf(server, "%s %s HTTP/1.0\r\n", req.Method, req.Path); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(server, "Host: %s\r\n", req.Host); err != nil {
		return err
	}
	if _, err := server.Write([]byte("Connection: close\r\n")); err != nil {
		return err
	}
	return nil
}

func (w *worker) processClientHeaders() error {
	clientIP, _, _ := net.SplitHostPort(w.conn.Client.RemoteAddr().String())
	return rewrite.ClientHeaders(w.conn, w.headers, w.server.Snapshot, w.server.Anonymous, clientIP)
}

// drainClientHeaders discards the body of a request that was denied
// before an upstream connection exists, matching spec.md §4.E's "consume
// and discard" branch (shouldForwardHeaders returns false with no server).
// The header block itself was already read into w.headers by Collect; a
// body announced by Content-Length is read here and dropped, since an
// error page has already been sent.
func (w *worker) drainClientHeaders() {
	_ = w.processClientHeaders()
	if w.conn.HasServer() || !w.conn.ResponseSent() {
		return
	}
	if v, ok := w.headers.Get("content-length"); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
			_ = relay.ForwardBody(w.conn, n)
		}
	}
}

// drainHeaderBlock reads and discards a header block that was never
// otherwise collected, for failure paths that short-circuit before the
// request line (or its parse) completes. Best effort: a read failure
// here just means the peer is already gone.
func (w *worker) drainHeaderBlock() {
	_, _ = headers.Collect(w.reader)
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			end := i
			if end > 0 && b[end-1] == '\r' {
				end--
			}
			return string(b[:end])
		}
	}
	return ""
}
