package datadog

import (
	"net"
	"strings"
	"testing"
	"time"

	"userimport/internal/metrics"
)

func TestNewBackend_RequiresAddr(t *testing.T) {
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("want error for empty Addr")
	}
}

func TestTags_Sorted(t *testing.T) {
	got := tags(metrics.Labels{"step": "load", "job": "users", "status": "success"})
	want := []string{"job:users", "status:success", "step:load"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
	if tags(nil) != nil {
		t.Fatal("nil labels should yield nil tags")
	}
}

// TestBackend_SendsDatagrams points the client at a local UDP socket and
// checks that a flushed counter arrives with namespace and tags.
func TestBackend_SendsDatagrams(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listen: %v", err)
	}
	defer pc.Close()

	b, err := NewBackend(Config{Addr: pc.LocalAddr().String(), Namespace: "userimport."})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	defer b.Close()

	b.IncCounter(metrics.RecordsTotal, 3, metrics.Labels{"kind": "parsed"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}
	got := string(buf[:n])
	if !strings.Contains(got, "userimport.import_records_total:3|c") || !strings.Contains(got, "kind:parsed") {
		t.Fatalf("datagram=%q", got)
	}
}

func TestZeroBackendIsSafe(t *testing.T) {
	b := &Backend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
