package serverstate

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	rs, err := NewRedisStore(context.Background(), mr.Addr(), "node-a")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}

	prev := current()
	UseStore(rs)
	defer UseStore(prev)

	if got := GetState(); got != StatusNotReady {
		t.Fatalf("initial state = %q; want %q", got, StatusNotReady)
	}

	SetModel("text300M", "cuda")
	SetState(StatusReady)

	rs2, err := NewRedisStore(context.Background(), "redis://"+mr.Addr()+"/0", "node-b")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	if st := rs2.Load(); st.Status != StatusNotReady || st.Device != "" {
		t.Fatalf("node-b sees node-a state: %#v", st)
	}
	if !mr.Exists("text2mesh:state:node-a") {
		t.Fatalf("state key for node-a missing")
	}
	if st := rs.Load(); st.Status != StatusReady || st.Device != "cuda" {
		t.Fatalf("persisted state = %#v", st)
	}
}

func TestRedisStoreRestartAfterDrain(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	prev := current()
	defer UseStore(prev)
	defer StopDrain()

	rs, err := NewRedisStore(context.Background(), mr.Addr(), "node-a")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	UseStore(rs)
	SetState(StatusLoading)
	SetModel("text300M", "cpu")
	SetState(StatusReady)
	StartDrain()
	if !IsDraining() {
		t.Fatalf("IsDraining = false after StartDrain")
	}

	// A restart gets a fresh process: the drain flag starts cleared and the
	// start-up sequence runs against the same key.
	StopDrain()
	rs, err = NewRedisStore(context.Background(), mr.Addr(), "node-a")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	UseStore(rs)
	if got := GetState(); got != StatusNotReady {
		t.Fatalf("state after reconnect = %q; want %q", got, StatusNotReady)
	}
	SetState(StatusLoading)
	SetModel("text300M", "cpu")
	SetState(StatusReady)

	st := Get()
	if st.Status != StatusReady || st.Draining || IsDraining() {
		t.Fatalf("state after restart = %#v", st)
	}
}

func TestRedisStoreDrainStaysLocal(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	prev := current()
	defer UseStore(prev)
	defer StopDrain()

	rs, err := NewRedisStore(context.Background(), mr.Addr(), "node-a")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	UseStore(rs)
	StartDrain()

	// Another process reading a draining record does not drain itself.
	StopDrain()
	if Get().Draining {
		t.Fatalf("stored draining flag leaked into Get")
	}
	if st := rs.Load(); st.Status != StatusDraining {
		t.Fatalf("stored status = %q; want %q", st.Status, StatusDraining)
	}
}

func TestRedisStoreRequiresInstance(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), "localhost:6379", ""); err == nil {
		t.Fatalf("expected error for empty instance")
	}
}

func TestRedisStoreUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedisStore(context.Background(), addr, "node-a"); err == nil {
		t.Fatalf("expected error for closed redis")
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		url    string
		addrs  int
		master string
		db     int
		tls    bool
	}{
		{"localhost:6379", 1, "", 0, false},
		{"redis://:pass@localhost:6379/1", 1, "", 1, false},
		{"rediss://host1:6379,host2:6379?db=3", 2, "", 3, true},
		{"redis-sentinel://localhost:26379/mymaster?db=2", 1, "mymaster", 2, false},
	}
	for _, tt := range tests {
		opts, err := parseRedisURL(tt.url)
		if err != nil {
			t.Fatalf("parseRedisURL(%q): %v", tt.url, err)
		}
		if len(opts.Addrs) != tt.addrs {
			t.Fatalf("%q addrs = %d; want %d", tt.url, len(opts.Addrs), tt.addrs)
		}
		if opts.MasterName != tt.master {
			t.Fatalf("%q master = %q; want %q", tt.url, opts.MasterName, tt.master)
		}
		if opts.DB != tt.db {
			t.Fatalf("%q db = %d; want %d", tt.url, opts.DB, tt.db)
		}
		if (opts.TLSConfig != nil) != tt.tls {
			t.Fatalf("%q tls = %v; want %v", tt.url, opts.TLSConfig != nil, tt.tls)
		}
	}
	for _, bad := range []string{"memcached://x:1", "redis://x:1/abc"} {
		if _, err := parseRedisURL(bad); err == nil {
			t.Fatalf("parseRedisURL(%q) should fail", bad)
		}
	}
}
