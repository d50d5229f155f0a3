package dialer

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"
)

type recordingMetrics struct {
	outcomes []string
}

func (r *recordingMetrics) ObserveDial(outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestDialer_DialSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	portNum, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	port := uint16(portNum)

	m := &recordingMetrics{}
	d := New(time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)), m)

	conn, err := d.Dial(context.Background(), host, port)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	conn.Close()

	if len(m.outcomes) != 1 || m.outcomes[0] != "ok" {
		t.Errorf("outcomes = %v, want [ok]", m.outcomes)
	}
}

func TestDialer_DialFailure(t *testing.T) {
	m := &recordingMetrics{}
	d := New(200*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)), m)

	_, err := d.Dial(context.Background(), "127.0.0.1", 1)
	if err == nil {
		t.Fatal("Dial() succeeded against port 1, want error")
	}
	if len(m.outcomes) != 1 || m.outcomes[0] != "error" {
		t.Errorf("outcomes = %v, want [error]", m.outcomes)
	}
}
