package httperr

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"fwdproxy-go/internal/model"
)

func TestSend_WritesStatusLineAndMarksLatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := &model.Connection{Client: client}

	done := make(chan error, 1)
	go func() { done <- BadRequest(conn, "no request found") }()

	r := bufio.NewReader(server)
	statusLine, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.HasPrefix(statusLine, "HTTP/1.0 400 Bad Request") {
		t.Errorf("status line = %q", statusLine)
	}

	if err := <-done; err != nil {
		t.Fatalf("BadRequest() error = %v", err)
	}
	if !conn.ResponseSent() {
		t.Error("BadRequest did not mark response sent")
	}
}

func TestSend_NoopWhenAlreadySent(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := &model.Connection{Client: client}
	conn.MarkResponseSent()

	// Send must return without writing anything: if it tried to write to
	// the unread pipe it would block forever, so a direct (non-goroutine)
	// call proves the no-op path was taken.
	if err := Forbidden(conn, "denied"); err != nil {
		t.Fatalf("Forbidden() error = %v", err)
	}
}
