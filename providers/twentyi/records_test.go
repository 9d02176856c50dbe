package twentyi

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"gitlab.bluewillows.net/root/dns20i/pkg/provider"
)

func newTestReconciler(serverURL string) *RecordReconciler {
	return NewRecordReconciler(newTestClient(serverURL), discardLogger())
}

func TestRecords(t *testing.T) {
	f, server := newFakeAPI(t, "example.com")
	f.addRecord("example.com", "www.example.com", "A", "", "r1")
	f.addRecord("example.com", "_acme-challenge.example.com", "TXT", "token", "r2")

	records, err := newTestReconciler(server.URL).Records(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	want := provider.Record{
		Host:  "_acme-challenge.example.com",
		Type:  provider.RecordTypeTXT,
		Value: "token",
		Ref:   `"r2"`,
	}
	if records[1] != want {
		t.Errorf("records[1] = %+v, want %+v", records[1], want)
	}
}

func TestRecords_ListFailure(t *testing.T) {
	f, server := newFakeAPI(t, "example.com")
	f.listStatus = http.StatusInternalServerError

	_, err := newTestReconciler(server.URL).Records(context.Background(), "example.com")
	if !provider.IsProviderError(err) {
		t.Errorf("expected ProviderError, got %v", err)
	}
}

func TestAddTXTRecord(t *testing.T) {
	tests := []struct {
		name       string
		recordName string
		wantHost   string
	}{
		{"subdomain", "_acme-challenge.www", "_acme-challenge.www"},
		{"apex", "", "@"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, server := newFakeAPI(t, "example.com")

			err := newTestReconciler(server.URL).AddTXTRecord(context.Background(), "example.com", tt.recordName, "token")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			posts := f.postCalls()
			if len(posts) != 1 {
				t.Fatalf("expected 1 POST, got %d", len(posts))
			}
			if posts[0].Path != "/domain/example.com/dns" {
				t.Errorf("unexpected path: %s", posts[0].Path)
			}

			want := map[string]any{
				"new": map[string]any{
					"TXT": []any{
						map[string]any{"host": tt.wantHost, "txt": "token"},
					},
				},
			}
			if !reflect.DeepEqual(posts[0].Body, want) {
				t.Errorf("body = %v, want %v", posts[0].Body, want)
			}
		})
	}
}

func TestAddTXTRecord_Conflict(t *testing.T) {
	tests := []struct {
		name       string
		recordType string
		txt        string
	}{
		{"same content", "TXT", "token"},
		{"different content", "TXT", "other"},
		{"different type", "CNAME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, server := newFakeAPI(t, "example.com")
			f.addRecord("example.com", "_acme-challenge.www.example.com", tt.recordType, tt.txt, "r1")

			err := newTestReconciler(server.URL).AddTXTRecord(context.Background(), "example.com", "_acme-challenge.www", "token")
			if !provider.IsConflict(err) {
				t.Fatalf("expected ConflictError, got %v", err)
			}

			var ce *provider.ConflictError
			if errors.As(err, &ce) && ce.Host != "_acme-challenge.www.example.com" {
				t.Errorf("Host = %q", ce.Host)
			}
			if len(f.postCalls()) != 0 {
				t.Error("expected no POST on conflict")
			}
		})
	}
}

func TestAddTXTRecord_OtherHostsIgnored(t *testing.T) {
	f, server := newFakeAPI(t, "example.com")
	f.addRecord("example.com", "www.example.com", "A", "", "r1")
	f.addRecord("example.com", "_acme-challenge.example.com", "TXT", "x", "r2")

	err := newTestReconciler(server.URL).AddTXTRecord(context.Background(), "example.com", "_acme-challenge.www", "token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.postCalls()) != 1 {
		t.Errorf("expected 1 POST, got %d", len(f.postCalls()))
	}
}

func TestAddTXTRecord_PostFailure(t *testing.T) {
	f, server := newFakeAPI(t, "example.com")
	f.postStatus = http.StatusInternalServerError

	err := newTestReconciler(server.URL).AddTXTRecord(context.Background(), "example.com", "_acme-challenge", "token")
	if !provider.IsProviderError(err) {
		t.Errorf("expected ProviderError, got %v", err)
	}
}

func TestDelTXTRecord(t *testing.T) {
	f, server := newFakeAPI(t, "example.com")
	f.addRecord("example.com", "_acme-challenge.www.example.com", "TXT", "other", "r1")
	f.addRecord("example.com", "_acme-challenge.www.example.com", "TXT", "token", "r2")
	f.addRecord("example.com", "www.example.com", "TXT", "token", "r3")

	err := newTestReconciler(server.URL).DelTXTRecord(context.Background(), "example.com", "_acme-challenge.www", "token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	posts := f.postCalls()
	if len(posts) != 1 {
		t.Fatalf("expected 1 POST, got %d", len(posts))
	}
	want := map[string]any{"delete": []any{"r2"}}
	if !reflect.DeepEqual(posts[0].Body, want) {
		t.Errorf("body = %v, want %v", posts[0].Body, want)
	}
}

func TestDelTXTRecord_Apex(t *testing.T) {
	f, server := newFakeAPI(t, "example.com")
	f.addRecord("example.com", "example.com", "TXT", "token", "r1")

	err := newTestReconciler(server.URL).DelTXTRecord(context.Background(), "example.com", "", "token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.postCalls()) != 1 {
		t.Errorf("expected 1 POST, got %d", len(f.postCalls()))
	}
}

func TestDelTXTRecord_Mismatch(t *testing.T) {
	tests := []struct {
		name  string
		seed  func(f *fakeAPI)
		found int
	}{
		{
			name:  "none",
			seed:  func(f *fakeAPI) {},
			found: 0,
		},
		{
			name: "content differs",
			seed: func(f *fakeAPI) {
				f.addRecord("example.com", "_acme-challenge.example.com", "TXT", "other", "r1")
			},
			found: 0,
		},
		{
			name: "wrong type",
			seed: func(f *fakeAPI) {
				f.addRecord("example.com", "_acme-challenge.example.com", "CNAME", "token", "r1")
			},
			found: 0,
		},
		{
			name: "duplicates",
			seed: func(f *fakeAPI) {
				f.addRecord("example.com", "_acme-challenge.example.com", "TXT", "token", "r1")
				f.addRecord("example.com", "_acme-challenge.example.com", "TXT", "token", "r2")
			},
			found: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, server := newFakeAPI(t, "example.com")
			tt.seed(f)

			err := newTestReconciler(server.URL).DelTXTRecord(context.Background(), "example.com", "_acme-challenge", "token")
			if !provider.IsReconciliation(err) {
				t.Fatalf("expected ReconciliationError, got %v", err)
			}

			var re *provider.ReconciliationError
			if !errors.As(err, &re) {
				t.Fatal("expected *provider.ReconciliationError")
			}
			if re.Found != tt.found {
				t.Errorf("Found = %d, want %d", re.Found, tt.found)
			}
			if len(f.postCalls()) != 0 {
				t.Error("expected no POST on mismatch")
			}
		})
	}
}

func TestDelTXTRecord_MissingRef(t *testing.T) {
	f, server := newFakeAPI(t, "example.com")
	f.mu.Lock()
	f.records["example.com"] = []map[string]any{
		{"host": "_acme-challenge.example.com", "type": "TXT", "txt": "token"},
	}
	f.mu.Unlock()

	err := newTestReconciler(server.URL).DelTXTRecord(context.Background(), "example.com", "_acme-challenge", "token")
	if !provider.IsProviderError(err) {
		t.Errorf("expected ProviderError, got %v", err)
	}
	if len(f.postCalls()) != 0 {
		t.Error("expected no POST without a ref")
	}
}

func TestDelTXTRecord_PostFailure(t *testing.T) {
	f, server := newFakeAPI(t, "example.com")
	f.addRecord("example.com", "_acme-challenge.example.com", "TXT", "token", "r1")
	f.postStatus = http.StatusBadGateway

	err := newTestReconciler(server.URL).DelTXTRecord(context.Background(), "example.com", "_acme-challenge", "token")
	if !provider.IsProviderError(err) {
		t.Errorf("expected ProviderError, got %v", err)
	}
}
