// Package rewrite implements the client-header rewriter (spec.md §4.E)
// and the server-header passthrough (§4.H): the hop-by-hop stripping,
// Via chaining, anonymization, and identity-header injection rules that
// turn a client's raw header block into the request forwarded upstream.
package rewrite

import (
	"fmt"
	"strconv"
	"strings"

	"fwdproxy-go/internal/anonymous"
	"fwdproxy-go/internal/model"
	"fwdproxy-go/internal/relay"
)

// hopByHop lists the headers unconditionally stripped before forwarding,
// per spec.md §4.E step 4.
var hopByHop = []string{
	"host",
	"connection",
	"keep-alive",
	"proxy-authenticate",
	"proxy-authorization",
	"te",
	"trailers",
	"transfer-encoding",
	"upgrade",
}

// connectionTokenSeparators is the set of characters that delimit tokens
// inside a Connection header's value (spec.md §4.E step 1).
const connectionTokenSeparators = "()<>@,;:\\\"/[]?={} \t"

// ClientHeaders performs the full §4.E rewrite. When the headers carry a
// parseable, non-negative Content-Length it also streams that many
// request-body bytes to the upstream itself, matching the original's
// single pass over the client socket.
//
// It writes nothing and returns immediately if the request should not be
// forwarded to an upstream at all: no server connection was established,
// or this is a direct-mode CONNECT (headers were already consumed by the
// caller's header collector either way, satisfying the "drain" contract).
func ClientHeaders(conn *model.Connection, h *model.HeaderMap, snap *model.Snapshot, anon *anonymous.Policy, clientIP string) error {
	if !shouldForwardHeaders(conn, snap) {
		return nil
	}

	removeConnectionTokenHeaders(h)

	contentLength, hasBody := captureContentLength(h)

	if err := writeVia(conn, h, snap); err != nil {
		return err
	}

	for _, name := range hopByHop {
		h.Del(name)
	}

	if err := emitHeaders(conn, h, anon); err != nil {
		return err
	}

	if snap.MyDomain != "" {
		if _, err := fmt.Fprintf(conn.Server, "X-Tinyproxy: %s\r\n", clientIP); err != nil {
			return fmt.Errorf("rewrite: write X-Tinyproxy header: %w", err)
		}
	}

	if _, err := conn.Server.Write([]byte("\r\n")); err != nil {
		return fmt.Errorf("rewrite: write header terminator: %w", err)
	}

	if hasBody && contentLength >= 0 {
		return relay.ForwardBody(conn, contentLength)
	}
	return nil
}

// shouldForwardHeaders implements spec.md §4.E's entry condition: an
// upstream socket exists, and this is not a CONNECT tunneled directly to
// the origin (direct CONNECT never gets an HTTP header block).
func shouldForwardHeaders(conn *model.Connection, snap *model.Snapshot) bool {
	if !conn.HasServer() {
		return false
	}
	if conn.ConnectMethod && !snap.UpstreamConfigured() {
		return false
	}
	return true
}

func removeConnectionTokenHeaders(h *model.HeaderMap) {
	value, ok := h.Get("connection")
	if !ok {
		return
	}
	for _, token := range tokenizeConnectionHeader(value) {
		h.Del(token)
	}
	h.Del("connection")
}

func tokenizeConnectionHeader(value string) []string {
	var tokens []string
	start := -1
	for i := 0; i <= len(value); i++ {
		isSep := i == len(value) || strings.IndexByte(connectionTokenSeparators, value[i]) >= 0
		if isSep {
			if start >= 0 {
				tokens = append(tokens, value[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	return tokens
}

func captureContentLength(h *model.HeaderMap) (length int64, ok bool) {
	value, present := h.Get("content-length")
	if !present {
		return -1, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return -1, false
	}
	return n, true
}

func writeVia(conn *model.Connection, h *model.HeaderMap, snap *model.Snapshot) error {
	identity := fmt.Sprintf("%d.%d %s (%s/%s)", conn.Version.Major, conn.Version.Minor, snap.Hostname, snap.PackageName, snap.Version)

	if existing, ok := h.Get("via"); ok {
		h.Del("via")
		_, err := fmt.Fprintf(conn.Server, "Via: %s, %s\r\n", existing, identity)
		return wrapWrite(err, "Via")
	}
	_, err := fmt.Fprintf(conn.Server, "Via: %s\r\n", identity)
	return wrapWrite(err, "Via")
}

func emitHeaders(conn *model.Connection, h *model.HeaderMap, anon *anonymous.Policy) error {
	for _, entry := range h.Entries() {
		if anon.Enabled() && !anon.Allowed(entry.Key) {
			continue
		}
		if _, err := fmt.Fprintf(conn.Server, "%s: %s\r\n", entry.Key, entry.Value); err != nil {
			return wrapWrite(err, entry.Key)
		}
	}
	return nil
}

func wrapWrite(err error, header string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("rewrite: write %s header: %w", header, err)
}
