// Package pipeline implements the state machine that turns one accepted
// TCP connection into a fully relayed (or rejected) proxy session:
// ACCEPTED -> ACL_CHECK -> (TUNNEL | PARSE_REQUEST) -> CONNECT_UPSTREAM ->
// PROCESS_CLIENT_HEADERS -> (SEND_CONNECT_OK | PROCESS_SERVER_HEADERS) ->
// RELAY -> TEARDOWN.
package pipeline

import (
	"bufio"
	"context"
	"log/slog"
	"net"

	"golang.org/x/time/rate"

	"fwdproxy-go/internal/acl"
	"fwdproxy-go/internal/anonymous"
	"fwdproxy-go/internal/dialer"
	"fwdproxy-go/internal/filter"
	"fwdproxy-go/internal/model"
	"fwdproxy-go/internal/relay"
	"fwdproxy-go/internal/stats"
)

// Server holds the collaborators every worker consults: ACL, domain
// filter, anonymous-mode policy, statistics counters, and the dialer used
// to reach origins, parent proxies, or the fixed tunnel target.
type Server struct {
	Snapshot  *model.Snapshot
	ACL       *acl.List
	Filter    *filter.Filter
	Anonymous *anonymous.Policy
	Dialer    *dialer.Dialer
	Counters  *stats.Counters
	Logger    *slog.Logger
	Bytes     relay.BytesRecorder

	// AcceptLimiter, when non-nil, bounds the rate at which newly accepted
	// connections are handed to a worker. The raw listener has no Echo
	// middleware chain to hang a limiter on, so Serve enforces it directly.
	AcceptLimiter *rate.Limiter
}

// New builds a Server from its collaborators. Any of acl, f, and anon may
// be nil, which each package's own nil-safe methods treat as "disabled".
// bytes and limiter may be nil to disable byte-count observation and
// accept-rate limiting respectively.
func New(snap *model.Snapshot, aclList *acl.List, f *filter.Filter, anon *anonymous.Policy, d *dialer.Dialer, counters *stats.Counters, logger *slog.Logger, bytes relay.BytesRecorder, limiter *rate.Limiter) *Server {
	return &Server{
		Snapshot:      snap,
		ACL:           aclList,
		Filter:        f,
		Anonymous:     anon,
		Dialer:        d,
		Counters:      counters,
		Logger:        logger,
		Bytes:         bytes,
		AcceptLimiter: limiter,
	}
}

// Serve accepts connections from ln until ctx is cancelled or Accept
// fails, dispatching one goroutine per accepted connection (spec.md §5:
// one worker per accepted connection, no shared mutable state beyond the
// statistics counters and the immutable configuration snapshot). A
// connection accepted faster than AcceptLimiter allows is closed
// immediately and counted as refused, before any pipeline state is built.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		if s.AcceptLimiter != nil && !s.AcceptLimiter.Allow() {
			s.Counters.IncRefused()
			_ = conn.Close()
			continue
		}
		s.Counters.IncAccepted()
		go s.handle(conn)
	}
}

// handle runs the full pipeline for one accepted socket, recovering from
// panics so one misbehaving connection cannot take down the listener.
func (s *Server) handle(client net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("pipeline: recovered from panic", "panic", r, "remote", client.RemoteAddr())
		}
	}()
	defer client.Close()

	reader := bufio.NewReader(client)
	conn := &model.Connection{Client: client, ClientReader: reader}
	w := &worker{server: s, conn: conn, reader: reader}
	w.run()
}
