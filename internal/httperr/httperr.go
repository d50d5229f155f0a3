// Package httperr implements the error responder: a minimal HTTP status
// line and HTML body written to the client, latching
// Connection.ResponseMessageSent so no further protocol bytes follow it.
package httperr

import (
	"fmt"

	"fwdproxy-go/internal/model"
)

const bodyTemplate = `<html><head><title>%d %s</title></head>
<body><h1>%d %s</h1><p>%s</p></body></html>
`

// Send writes "HTTP/1.0 <code> <reason>" plus a minimal HTML body to
// conn.Client and marks the response-already-sent latch. It is a no-op
// if a response was already sent, since the latch must never be
// violated by a second status line.
func Send(conn *model.Connection, code int, reason, detail string) error {
	if conn.ResponseSent() {
		return nil
	}
	body := fmt.Sprintf(bodyTemplate, code, reason, code, reason, detail)
	resp := fmt.Sprintf(
		"HTTP/1.0 %d %s\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		code, reason, len(body), body,
	)
	_, err := conn.Client.Write([]byte(resp))
	conn.MarkResponseSent()
	return err
}

// BadRequest sends a 400 (malformed client protocol).
func BadRequest(conn *model.Connection, detail string) error {
	return Send(conn, 400, "Bad Request", detail)
}

// Forbidden sends a 403 (ACL denial).
func Forbidden(conn *model.Connection, detail string) error {
	return Send(conn, 403, "Forbidden", detail)
}

// NotFound sends a 404 (filtered domain, or upstream/tunnel unreachable).
func NotFound(conn *model.Connection, detail string) error {
	return Send(conn, 404, "Not Found", detail)
}

// InternalServerError sends a 500 (direct-mode connect failure).
func InternalServerError(conn *model.Connection, detail string) error {
	return Send(conn, 500, "Internal Server Error", detail)
}
