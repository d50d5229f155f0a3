package rewrite

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"fwdproxy-go/internal/model"
)

func TestServerHeaders_PassthroughUntilBlankLine(t *testing.T) {
	client, proxyClient := net.Pipe()
	defer client.Close()

	conn := &model.Connection{Client: proxyClient}

	raw := "HTTP/1.0 200 OK\r\nContent-Type: text/html\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))

	done := make(chan error, 1)
	go func() { done <- ServerHeaders(conn, r) }()

	client.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, len(raw))
	n := 0
	for n < len(raw) {
		m, err := client.Read(buf[n:])
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		n += m
	}

	if err := <-done; err != nil {
		t.Fatalf("ServerHeaders() error = %v", err)
	}
	if string(buf[:n]) != raw {
		t.Errorf("got %q, want %q", buf[:n], raw)
	}
}

func TestServerHeaders_PeerDisconnectBeforeBlankLineIsError(t *testing.T) {
	client, proxyClient := net.Pipe()
	defer client.Close()

	conn := &model.Connection{Client: proxyClient}

	raw := "HTTP/1.0 200 OK\r\nContent-Type: text/html\r\n"
	r := bufio.NewReader(strings.NewReader(raw))

	done := make(chan error, 1)
	go func() { done <- ServerHeaders(conn, r) }()

	client.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, len(raw))
	n := 0
	for n < len(raw) {
		m, err := client.Read(buf[n:])
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		n += m
	}

	if err := <-done; err == nil {
		t.Fatal("ServerHeaders() error = nil, want error on truncated header block")
	}
}
