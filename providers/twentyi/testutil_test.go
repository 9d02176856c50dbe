package twentyi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gitlab.bluewillows.net/root/dns20i/pkg/httputil"
)

// testToken is the bearer token the fake API expects.
const testToken = "dGVzdC1rZXk="

// postCall captures one POST received by the fake API.
type postCall struct {
	Path string
	Body map[string]any
}

// fakeAPI is an in-memory stand-in for the 20i REST API.
type fakeAPI struct {
	t *testing.T

	mu          sync.Mutex
	zones       map[string]bool
	records     map[string][]map[string]any
	probeStatus map[string]int // GET /domain/{name} status overrides
	listStatus  int            // GET /domain/{zone}/dns status override
	postStatus  int            // POST status override
	gets        []string
	posts       []postCall
}

// newFakeAPI starts a fake API hosting zones.
func newFakeAPI(t *testing.T, zones ...string) (*fakeAPI, *httptest.Server) {
	t.Helper()

	f := &fakeAPI{
		t:           t,
		zones:       make(map[string]bool),
		records:     make(map[string][]map[string]any),
		probeStatus: make(map[string]int),
	}
	for _, z := range zones {
		f.zones[z] = true
	}

	server := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(server.Close)
	return f, server
}

// addRecord seeds a record in zone.
func (f *fakeAPI) addRecord(zone, host, recordType, txt, ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[zone] = append(f.records[zone], map[string]any{
		"host": host,
		"type": recordType,
		"txt":  txt,
		"ref":  ref,
	})
}

func (f *fakeAPI) postCalls() []postCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postCall(nil), f.posts...)
}

func (f *fakeAPI) getCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.gets...)
}

func (f *fakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if r.Header.Get("Authorization") != "Bearer "+testToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"unauthorized"}`)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/domain/")
	isDNS := strings.HasSuffix(name, "/dns")
	name = strings.TrimSuffix(name, "/dns")

	switch {
	case r.Method == http.MethodGet && !isDNS:
		f.gets = append(f.gets, name)
		if status, ok := f.probeStatus[name]; ok {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":"forced"}`)
			return
		}
		if !f.zones[name] {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"not found"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"name": name})

	case r.Method == http.MethodGet && isDNS:
		if f.listStatus != 0 {
			w.WriteHeader(f.listStatus)
			return
		}
		records := f.records[name]
		if records == nil {
			records = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"records": records})

	case r.Method == http.MethodPost && isDNS:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decoding POST body: %v", err)
		}
		f.posts = append(f.posts, postCall{Path: r.URL.Path, Body: body})
		if f.postStatus != 0 {
			w.WriteHeader(f.postStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true})

	default:
		f.t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// newTestClient returns a client authenticated for the fake API.
func newTestClient(serverURL string) *Client {
	return NewClient(httputil.BearerToken(testToken),
		WithAPIEndpoint(serverURL),
		WithLogger(discardLogger()),
	)
}

// newTestProvider returns a provider wired to the fake API.
func newTestProvider(serverURL string) *Provider {
	return NewWithAPI(newTestClient(serverURL), WithProviderLogger(discardLogger()))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
