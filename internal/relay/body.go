package relay

import (
	"fmt"
	"io"

	"fwdproxy-go/internal/model"
)

// ForwardBody streams length bytes of a request body from conn.Client to
// conn.Server (pull_client_data). It reads through conn.ClientSrc(), not
// conn.Client directly: the header collector already pulled some of the
// body into its buffer while reading ahead for the blank line, so a raw
// socket read here would skip those bytes. Bytes are still drained from
// the client even after a locally generated error page has been sent, so
// the client is left in a clean state for the connection to close; they
// are simply not forwarded to the (possibly absent) upstream in that case.
func ForwardBody(conn *model.Connection, length int64) error {
	src := conn.ClientSrc()
	buf := make([]byte, model.MaxBuffSize)
	remaining := length

	for remaining > 0 {
		want := remaining
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}

		n, err := src.Read(buf[:want])
		if n > 0 && !conn.ResponseSent() {
			if _, werr := conn.Server.Write(buf[:n]); werr != nil {
				return fmt.Errorf("relay: forward body to upstream: %w", werr)
			}
		}
		remaining -= int64(n)

		if err != nil {
			if remaining > 0 {
				return fmt.Errorf("relay: read body from client: %w", err)
			}
			if err != io.EOF {
				return fmt.Errorf("relay: read body from client: %w", err)
			}
		}
	}

	return nil
}
