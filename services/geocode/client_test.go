package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const zurichResponse = `[
	{"lat": "47.3744489", "lon": "8.5410422", "display_name": "Zürich, Bezirk Zürich, Schweiz"},
	{"lat": "-33.0", "lon": "-70.25", "display_name": "Zurich, Chile"}
]`

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/search" {
			t.Errorf("path = %q, want /search", r.URL.Path)
		}
		if got := r.URL.Query().Get("format"); got != "jsonv2" {
			t.Errorf("format = %q, want jsonv2", got)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing user agent")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

func TestClientSearch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		query      string
		wantCount  int
		wantErr    bool
		wantCalls  int64
		wantFirst  float64
		wantSecond float64
	}{
		{name: "decodes results", status: http.StatusOK, body: zurichResponse, query: "zurich", wantCount: 2, wantCalls: 1, wantFirst: 47.3744489, wantSecond: -70.25},
		{name: "empty result", status: http.StatusOK, body: `[]`, query: "nowhere", wantCalls: 1},
		{name: "blank query skips upstream", status: http.StatusOK, body: `[]`, query: "   "},
		{name: "upstream error", status: http.StatusTooManyRequests, body: `{}`, query: "zurich", wantErr: true, wantCalls: 1},
		{name: "malformed coordinate", status: http.StatusOK, body: `[{"lat":"x","lon":"1","display_name":"y"}]`, query: "bad", wantErr: true, wantCalls: 1},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server, calls := newTestServer(t, testCase.status, testCase.body)
			client := New(WithBaseURL(server.URL), WithRateLimit(1000))
			defer func() { _ = client.Close() }()

			locations, err := client.Search(context.Background(), testCase.query)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
			} else if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			if len(locations) != testCase.wantCount {
				t.Fatalf("locations = %d, want %d", len(locations), testCase.wantCount)
			}
			if calls.Load() != testCase.wantCalls {
				t.Fatalf("upstream calls = %d, want %d", calls.Load(), testCase.wantCalls)
			}
			if testCase.wantCount == 2 {
				if locations[0].Latitude != testCase.wantFirst || locations[1].Longitude != testCase.wantSecond {
					t.Fatalf("unexpected coordinates %+v", locations)
				}
				if locations[0].Name != "Zürich, Bezirk Zürich, Schweiz" {
					t.Fatalf("name = %q", locations[0].Name)
				}
			}
		})
	}
}

func TestClientSearchUsesStore(t *testing.T) {
	t.Parallel()

	server, calls := newTestServer(t, http.StatusOK, zurichResponse)
	store, err := OpenStore(filepath.Join(t.TempDir(), "geocode.db"), time.Hour)
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	client := New(WithBaseURL(server.URL), WithRateLimit(1000), WithStore(store))
	defer func() { _ = client.Close() }()

	for _, query := range []string{"Zurich", "zurich", " ZURICH "} {
		locations, err := client.Search(context.Background(), query)
		if err != nil {
			t.Fatalf("search %q failed: %v", query, err)
		}
		if len(locations) != 2 {
			t.Fatalf("search %q locations = %d, want 2", query, len(locations))
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestClientSearchHonorsRateLimitCancellation(t *testing.T) {
	t.Parallel()

	server, calls := newTestServer(t, http.StatusOK, `[]`)
	client := New(WithBaseURL(server.URL), WithRateLimit(0.001))
	defer func() { _ = client.Close() }()

	if _, err := client.Search(context.Background(), "first"); err != nil {
		t.Fatalf("first search failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Search(ctx, "second"); err == nil {
		t.Fatal("expected rate limited search to fail on context deadline")
	}
	if calls.Load() != 1 {
		t.Fatalf("upstream calls = %d, want 1", calls.Load())
	}
}
