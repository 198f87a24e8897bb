package serverstate

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestMemoryStore(t *testing.T) {
	prev := UseStore(NewMemoryStore())
	defer UseStore(prev)

	if got := Status(); got != StatusNotReady {
		t.Fatalf("initial status = %q", got)
	}
	SetHandler("bm25", "parsed", true, "multi")
	SetStatus(StatusReady)
	st := Get()
	if st.Status != StatusReady || st.Handler != "bm25" || !st.Exclusive || st.UpdatedAt.IsZero() {
		t.Fatalf("state = %+v", st)
	}
	StartDrain()
	if !IsDraining() || Status() != StatusDraining {
		t.Fatalf("drain not recorded: %+v", Get())
	}
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	rs, err := NewRedisStore(mr.Addr(), "")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer rs.Close()

	prev := UseStore(rs)
	defer UseStore(prev)

	if got := Status(); got != StatusNotReady {
		t.Fatalf("initial status = %q; want %q", got, StatusNotReady)
	}
	SetStatus(StatusReady)
	if got := Status(); got != StatusReady {
		t.Fatalf("status after SetStatus = %q", got)
	}
	StartDrain()

	// a second replica sees the persisted state
	rs2, err := NewRedisStore(mr.Addr(), DefaultRedisKey)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer rs2.Close()
	if st := rs2.Load(); st.Status != StatusDraining || !st.Draining {
		t.Fatalf("persisted state = %#v", st)
	}
}

func TestRedisStoreUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedisStore(addr, ""); err == nil {
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
		{"rediss://localhost:6380?db=3", 1, "", 3, true},
		{"redis://host1:6379,host2:6379/0", 2, "", 0, false},
		{"redis-sentinel://localhost:26379/mymaster?db=2", 1, "mymaster", 2, false},
	}
	for _, tt := range tests {
		opts, err := parseRedisURL(tt.url)
		if err != nil {
			t.Fatalf("parseRedisURL(%q): %v", tt.url, err)
		}
		if len(opts.Addrs) != tt.addrs || opts.MasterName != tt.master || opts.DB != tt.db || (opts.TLSConfig != nil) != tt.tls {
			t.Fatalf("%q parsed to %+v", tt.url, opts)
		}
	}
	for _, bad := range []string{"http://localhost", "redis://localhost/x"} {
		if _, err := parseRedisURL(bad); err == nil {
			t.Fatalf("parseRedisURL(%q): expected error", bad)
		}
	}
}
