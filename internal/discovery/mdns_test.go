// ABOUTME: Tests for mDNS server discovery
// ABOUTME: Tests entry parsing, TXT path handling and de-duplicated browsing
package discovery

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap/zaptest"
)

func TestServerFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       `Living\ Room._sendspin-server._tcp.local.`,
		Host:       "livingroom.local.",
		AddrV4:     net.ParseIP("192.168.1.5"),
		Port:       8927,
		InfoFields: []string{"version=1", "path=/sendspin"},
	}

	srv, ok := serverFromEntry(entry)
	if !ok {
		t.Fatal("expected entry to be usable")
	}

	want := Server{Name: "Living Room", Host: "192.168.1.5", Port: 8927, Path: "/sendspin"}
	if srv != want {
		t.Errorf("expected %+v, got %+v", want, srv)
	}
	if srv.Addr() != "192.168.1.5:8927" {
		t.Errorf("unexpected addr %s", srv.Addr())
	}
}

func TestServerFromEntryFallbacks(t *testing.T) {
	srv, ok := serverFromEntry(&mdns.ServiceEntry{Name: "x", Host: "box.local.", Port: 80})
	if !ok {
		t.Fatal("expected host name fallback")
	}
	if srv.Host != "box.local" {
		t.Errorf("expected box.local, got %s", srv.Host)
	}

	if _, ok := serverFromEntry(&mdns.ServiceEntry{Name: "x", Port: 80}); ok {
		t.Error("expected entry without address to be rejected")
	}
	if _, ok := serverFromEntry(&mdns.ServiceEntry{Name: "x", Host: "box.local."}); ok {
		t.Error("expected entry without port to be rejected")
	}
	if _, ok := serverFromEntry(nil); ok {
		t.Error("expected nil entry to be rejected")
	}
}

func TestPathFromTXT(t *testing.T) {
	tests := []struct {
		fields []string
		want   string
	}{
		{nil, "/sendspin"},
		{[]string{"path=/ws"}, "/ws"},
		{[]string{"PATH = ws "}, "/ws"},
		{[]string{"path="}, "/sendspin"},
		{[]string{"name=foo", "path=/a/b"}, "/a/b"},
	}

	for _, tt := range tests {
		if got := pathFromTXT(tt.fields); got != tt.want {
			t.Errorf("pathFromTXT(%q) = %q, want %q", tt.fields, got, tt.want)
		}
	}
}

// fakeQuery answers every round with the same entries
func fakeQuery(calls *atomic.Int32, entries ...*mdns.ServiceEntry) queryFunc {
	return func(params *mdns.QueryParam) error {
		calls.Add(1)
		if params.Service != ServiceType {
			return errors.New("wrong service")
		}
		for _, e := range entries {
			params.Entries <- e
		}
		return nil
	}
}

func TestBrowseDeduplicates(t *testing.T) {
	var calls atomic.Int32
	b := NewBrowser(WithLogger(zaptest.NewLogger(t)))
	b.pause = time.Millisecond
	b.query = fakeQuery(&calls,
		&mdns.ServiceEntry{Name: "a", AddrV4: net.ParseIP("10.0.0.1"), Port: 8927},
		&mdns.ServiceEntry{Name: "b", AddrV4: net.ParseIP("10.0.0.2"), Port: 8927},
	)

	ctx, cancel := context.WithCancel(context.Background())
	servers := b.Browse(ctx)

	var got []Server
	for len(got) < 2 {
		select {
		case srv := <-servers:
			got = append(got, srv)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for servers")
		}
	}

	// Let a few more rounds run; nothing new should come out
	for calls.Load() < 3 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	for srv := range servers {
		t.Errorf("duplicate server emitted: %+v", srv)
	}
	if got[0].Host != "10.0.0.1" || got[1].Host != "10.0.0.2" {
		t.Errorf("unexpected servers %+v", got)
	}
}

func TestFirst(t *testing.T) {
	var calls atomic.Int32
	b := NewBrowser()
	b.query = fakeQuery(&calls,
		&mdns.ServiceEntry{Name: "srv", AddrV4: net.ParseIP("10.0.0.9"), Port: 80, InfoFields: []string{"path=/ws"}},
	)

	srv, err := b.First(context.Background())
	if err != nil {
		t.Fatalf("First failed: %v", err)
	}
	if srv.Path != "/ws" || srv.Port != 80 {
		t.Errorf("unexpected server %+v", srv)
	}
}

func TestFirstNotFound(t *testing.T) {
	var calls atomic.Int32
	b := NewBrowser()
	b.pause = time.Millisecond
	b.query = fakeQuery(&calls)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.First(ctx)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
