package propagation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// fakeDNS is a loopback nameserver serving TXT records from a map.
type fakeDNS struct {
	mu      sync.Mutex
	txt     map[string][]string
	queries int
	// appearAfter publishes pending records once this many queries were answered.
	appearAfter int
	pending     map[string][]string
}

func startFakeDNS(t *testing.T) (*fakeDNS, string) {
	t.Helper()

	f := &fakeDNS{
		txt:     make(map[string][]string),
		pending: make(map[string][]string),
	}

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		Handler:           dns.HandlerFunc(f.serve),
		NotifyStartedFunc: func() { close(started) },
	}

	go func() {
		_ = server.ActivateAndServe()
	}()
	<-started

	t.Cleanup(func() {
		_ = server.Shutdown()
	})

	return f, pc.LocalAddr().String()
}

func (f *fakeDNS) set(name string, values ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txt[dns.Fqdn(name)] = values
}

func (f *fakeDNS) serve(w dns.ResponseWriter, r *dns.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries++
	if f.appearAfter > 0 && f.queries > f.appearAfter {
		for name, values := range f.pending {
			f.txt[name] = values
		}
	}

	m := new(dns.Msg)
	m.SetReply(r)

	q := r.Question[0]
	values, ok := f.txt[q.Name]
	if !ok {
		m.Rcode = dns.RcodeNameError
	} else if q.Qtype == dns.TypeTXT {
		for _, v := range values {
			m.Answer = append(m.Answer, &dns.TXT{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 1},
				Txt: []string{v},
			})
		}
	}

	_ = w.WriteMsg(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestChecker(t *testing.T, servers []string, opts ...Option) *Checker {
	t.Helper()
	opts = append([]Option{
		WithNameservers(servers...),
		WithLogger(discardLogger()),
		WithInterval(10 * time.Millisecond),
		WithTimeout(time.Second),
	}, opts...)
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestChecker_Lookup(t *testing.T) {
	f, addr := startFakeDNS(t)
	f.set("_acme-challenge.example.com", "abc", "def")

	c := newTestChecker(t, []string{addr})

	values, err := c.Lookup(context.Background(), addr, "_acme-challenge.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(values, []string{"abc", "def"}) {
		t.Errorf("Lookup() = %v, want [abc def]", values)
	}

	values, err = c.Lookup(context.Background(), addr, "missing.example.com")
	if err != nil {
		t.Fatalf("unexpected error for NXDOMAIN: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("expected no values for NXDOMAIN, got %v", values)
	}
}

func TestChecker_WaitVisible(t *testing.T) {
	f, addr := startFakeDNS(t)
	f.set("_acme-challenge.example.com", "token")

	c := newTestChecker(t, []string{addr})

	if err := c.Wait(context.Background(), "_acme-challenge.example.com", "token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestChecker_WaitEventuallyVisible(t *testing.T) {
	f, addr := startFakeDNS(t)
	f.mu.Lock()
	f.appearAfter = 3
	f.pending["_acme-challenge.example.com."] = []string{"token"}
	f.mu.Unlock()

	c := newTestChecker(t, []string{addr})

	if err := c.Wait(context.Background(), "_acme-challenge.example.com", "token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queries < 4 {
		t.Errorf("expected at least 4 queries, got %d", f.queries)
	}
}

func TestChecker_WaitAllServers(t *testing.T) {
	f1, addr1 := startFakeDNS(t)
	_, addr2 := startFakeDNS(t)
	f1.set("_acme-challenge.example.com", "token")

	c := newTestChecker(t, []string{addr1, addr2}, WithTimeout(100*time.Millisecond))

	err := c.Wait(context.Background(), "_acme-challenge.example.com", "token")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout while one server lags, got %v", err)
	}
}

func TestChecker_WaitTimeout(t *testing.T) {
	f, addr := startFakeDNS(t)
	f.set("_acme-challenge.example.com", "stale")

	c := newTestChecker(t, []string{addr}, WithTimeout(100*time.Millisecond))

	err := c.Wait(context.Background(), "_acme-challenge.example.com", "token")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestChecker_WaitCanceled(t *testing.T) {
	_, addr := startFakeDNS(t)
	c := newTestChecker(t, []string{addr}, WithDelay(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Wait(ctx, "_acme-challenge.example.com", "token")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNew_ResolvConf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	content := "search example.com\nnameserver 192.0.2.1\nnameserver 2001:db8::1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing resolv.conf: %v", err)
	}

	c, err := New(WithResolvConf(path), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := []string{"192.0.2.1:53", "[2001:db8::1]:53"}
	if got := c.Nameservers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Nameservers() = %v, want %v", got, want)
	}
}

func TestNew_ResolvConfErrors(t *testing.T) {
	if _, err := New(WithResolvConf(filepath.Join(t.TempDir(), "missing"))); err == nil {
		t.Error("expected error for missing resolv.conf")
	}

	path := filepath.Join(t.TempDir(), "resolv.conf")
	if err := os.WriteFile(path, []byte("search example.com\n"), 0o644); err != nil {
		t.Fatalf("writing resolv.conf: %v", err)
	}
	if _, err := New(WithResolvConf(path)); err == nil {
		t.Error("expected error for resolv.conf without nameservers")
	}
}

func TestWithPort(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.0.2.1", "192.0.2.1:53"},
		{"192.0.2.1:5353", "192.0.2.1:5353"},
		{"2001:db8::1", "[2001:db8::1]:53"},
		{"[2001:db8::1]", "[2001:db8::1]:53"},
		{"[2001:db8::1]:5353", "[2001:db8::1]:5353"},
		{"ns1.example.com", "ns1.example.com:53"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := withPort(tt.in); got != tt.want {
				t.Errorf("withPort(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
