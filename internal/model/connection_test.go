package model

import (
	"bufio"
	"io"
	"strings"
	"testing"
)

func TestHeaderMap_InsertionOrderStableOnDuplicate(t *testing.T) {
	h := NewHeaderMap()
	h.Set("User-Agent", "curl/8")
	h.Set("X-Keep", "here")
	h.Set("User-Agent", "curl/9")

	entries := h.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Key != "User-Agent" || entries[0].Value != "curl/9" {
		t.Errorf("entries[0] = %+v, want {User-Agent curl/9}", entries[0])
	}
	if entries[1].Key != "X-Keep" || entries[1].Value != "here" {
		t.Errorf("entries[1] = %+v, want {X-Keep here}", entries[1])
	}
}

func TestHeaderMap_CaseInsensitiveLookup(t *testing.T) {
	h := NewHeaderMap()
	h.Set("Content-Length", "5")

	v, ok := h.Get("content-LENGTH")
	if !ok || v != "5" {
		t.Fatalf("Get(content-LENGTH) = %q, %v, want 5, true", v, ok)
	}
}

func TestHeaderMap_Del(t *testing.T) {
	h := NewHeaderMap()
	h.Set("Connection", "close")
	h.Set("X-Keep", "here")
	h.Del("connection")

	if _, ok := h.Get("Connection"); ok {
		t.Error("Connection header still present after Del")
	}
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}
}

func TestConnection_ResponseSentLatch(t *testing.T) {
	c := &Connection{}
	if c.ResponseSent() {
		t.Fatal("new Connection reports response already sent")
	}
	c.MarkResponseSent()
	if !c.ResponseSent() {
		t.Fatal("MarkResponseSent did not set the latch")
	}
}

func TestConnection_SrcFallsBackToRawConnWhenNoReaderSet(t *testing.T) {
	c := &Connection{}
	if c.ClientSrc() != nil {
		t.Error("ClientSrc() with no Client and no ClientReader should be nil")
	}
}

func TestConnection_SrcPrefersBufferedReader(t *testing.T) {
	buffered := bufio.NewReader(strings.NewReader("buffered"))
	c := &Connection{ClientReader: buffered, ServerReader: buffered}

	if c.ClientSrc() != io.Reader(buffered) {
		t.Error("ClientSrc() did not prefer the buffered ClientReader")
	}
	if c.ServerSrc() != io.Reader(buffered) {
		t.Error("ServerSrc() did not prefer the buffered ServerReader")
	}
}

func TestSnapshot_UpstreamAndTunnelConfigured(t *testing.T) {
	s := &Snapshot{}
	if s.UpstreamConfigured() || s.TunnelConfigured() {
		t.Fatal("empty snapshot reports upstream or tunnel configured")
	}
	s.UpstreamHost, s.UpstreamPort = "proxy.internal", 3128
	if !s.UpstreamConfigured() {
		t.Fatal("UpstreamConfigured() = false, want true")
	}
}
