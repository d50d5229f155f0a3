package relay

import (
	"io"
	"net"
	"sync/atomic"
	"time"

	"fwdproxy-go/internal/model"
)

// BytesRecorder observes the number of bytes forwarded in one direction of
// a relay, satisfied by internal/metrics.Metrics.ObserveRelayBytes. A nil
// BytesRecorder disables observation.
type BytesRecorder interface {
	ObserveRelayBytes(direction string, n int)
}

// Relay copies bytes bidirectionally between conn.Client and conn.Server
// until either peer closes, a hard I/O error occurs, or idleTimeout
// elapses without a successful transfer in either direction (spec.md
// §4.J). It returns the error that ended the relay. bytes may be nil.
//
// Each pump reads through conn.ClientSrc()/conn.ServerSrc() rather than
// the raw sockets: whichever bufio.Reader the blocking phase used to read
// a request/status line and headers may already hold bytes read ahead
// off the wire (a pipelined TLS ClientHello right after a CONNECT line,
// the start of a response body pulled in while scanning for the blank
// line). Reading the raw net.Conn here would skip those buffered bytes.
//
// Each direction runs on its own goroutine, which is the idiomatic Go
// rendering of the C source's single-threaded non-blocking select()
// loop: Go's runtime multiplexes the two blocking Reads for us, so there
// is no separate "ready" bookkeeping to reproduce. Because each read is
// written to its destination immediately, there is no leftover
// application buffer to drain on teardown — each direction's last chunk
// has already reached its intended destination, avoiding the
// misdirected-flush bug spec.md §9 calls out in the original.
func Relay(conn *model.Connection, idleTimeout time.Duration, bytes BytesRecorder) error {
	var lastAccess atomic.Int64
	lastAccess.Store(time.Now().UnixNano())

	errc := make(chan error, 2)
	go pump(conn.ServerSrc(), conn.Client, &lastAccess, errc, bytes, "server_to_client")
	go pump(conn.ClientSrc(), conn.Server, &lastAccess, errc, bytes, "client_to_server")

	stopWatchdog := make(chan struct{})
	watchdogDone := make(chan struct{})
	go watchIdle(conn, idleTimeout, &lastAccess, stopWatchdog, watchdogDone)

	// The relay ends when either direction reports a hard error (peer
	// closed, transport failure) or the watchdog closes both sockets
	// after idleTimeout of joint inactivity.
	first := <-errc

	close(stopWatchdog)
	<-watchdogDone

	_ = conn.Client.Close()
	_ = conn.Server.Close()

	<-errc // best-effort: let the other direction unwind before returning

	return first
}

func pump(src io.Reader, dst net.Conn, lastAccess *atomic.Int64, errc chan<- error, bytes BytesRecorder, direction string) {
	buf := make([]byte, model.MaxBuffSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			lastAccess.Store(time.Now().UnixNano())
			if _, werr := dst.Write(buf[:n]); werr != nil {
				errc <- werr
				return
			}
			if bytes != nil {
				bytes.ObserveRelayBytes(direction, n)
			}
		}
		if err != nil {
			errc <- err
			return
		}
	}
}

// watchIdle closes both sockets once idleTimeout has elapsed since the
// last successful transfer in either direction, unblocking both pumps'
// in-flight Reads.
func watchIdle(conn *model.Connection, idleTimeout time.Duration, lastAccess *atomic.Int64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := idleTimeout / 4
	if interval < 20*time.Millisecond {
		interval = 20 * time.Millisecond
	}
	if interval > 2*time.Second {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			last := time.Unix(0, lastAccess.Load())
			if time.Since(last) > idleTimeout {
				_ = conn.Client.Close()
				_ = conn.Server.Close()
				return
			}
		}
	}
}
