package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// pageRequest is the body every data endpoint receives.
type pageRequest struct {
	Pagination struct {
		PerPage int `json:"per_page"`
		Page    int `json:"page"`
	} `json:"pagination"`
	StartDate string `json:"start_date"`
}

func decodePageRequest(t *testing.T, r *http.Request) pageRequest {
	t.Helper()
	var req pageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	return req
}

// newTestServer wires a token endpoint plus one data endpoint handler.
func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("CF-Access-Client-Id") != "cid" {
			t.Errorf("client id header = %q, want %q", r.Header.Get("CF-Access-Client-Id"), "cid")
		}
		if r.Header.Get("CF-Access-Client-Secret") != "csec" {
			t.Errorf("client secret header = %q, want %q", r.Header.Get("CF-Access-Client-Secret"), "csec")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostFormValue("username") != "user" {
			t.Errorf("username = %q, want %q", r.PostFormValue("username"), "user")
		}
		json.NewEncoder(w).Encode(map[string]string{
			"token_type":   "Bearer",
			"access_token": "tok123",
		})
	})
	mux.HandleFunc("/", handler)
	return httptest.NewServer(mux)
}

func newTestClient(serverURL string, opts ...ClientOption) *Client {
	return NewClient(serverURL, "user", "pass", "cid", "csec", opts...)
}

func TestAuthenticate(t *testing.T) {
	t.Run("stores credential headers", func(t *testing.T) {
		server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
		defer server.Close()

		c := newTestClient(server.URL)
		if c.Authenticated() {
			t.Fatal("client should start unauthenticated")
		}
		if err := c.Authenticate(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !c.Authenticated() {
			t.Fatal("client should be authenticated")
		}
		if got := c.credentials["Authorization"]; got != "Bearer tok123" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer tok123")
		}
		if got := c.credentials["CF-Access-Client-Id"]; got != "cid" {
			t.Errorf("client id credential = %q, want %q", got, "cid")
		}
	})

	t.Run("failure surfaces as APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		c := newTestClient(server.URL)
		err := c.Authenticate(context.Background())
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != http.StatusForbidden {
			t.Errorf("StatusCode = %d, want 403", apiErr.StatusCode)
		}
		if c.Authenticated() {
			t.Error("client must not hold credentials after a failed authentication")
		}
	})
}

func TestFetchAllListPayload(t *testing.T) {
	t.Run("dedupes across pages and stops on consecutive empties", func(t *testing.T) {
		// Page 0 carries five items, page 1 carries two new plus three
		// repeats, pages 2 and 3 are empty.
		var dataRequests int32
		server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&dataRequests, 1)
			req := decodePageRequest(t, r)
			if req.Pagination.PerPage != 5 {
				t.Errorf("per_page = %d, want 5", req.Pagination.PerPage)
			}
			var items []map[string]any
			switch req.Pagination.Page {
			case 0:
				for i := 1; i <= 5; i++ {
					items = append(items, map[string]any{"id": fmt.Sprintf("a%d", i)})
				}
			case 1:
				items = []map[string]any{
					{"id": "b1"}, {"id": "b2"},
					{"id": "a1"}, {"id": "a2"}, {"id": "a3"},
				}
			default:
				items = []map[string]any{}
			}
			json.NewEncoder(w).Encode(map[string]any{"objects": items})
		})
		defer server.Close()

		c := newTestClient(server.URL)
		recs, err := c.FetchAll(context.Background(), "operations/get", nil, FetchOptions{
			PayloadKey:     "objects",
			IdentityFields: []string{"id"},
			PageSize:       5,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(recs) != 7 {
			t.Errorf("len(recs) = %d, want 7", len(recs))
		}
		// Pages 0 through 3: the second empty page ends the fetch.
		if dataRequests != 4 {
			t.Errorf("data requests = %d, want 4", dataRequests)
		}
	})

	t.Run("short page ends the fetch", func(t *testing.T) {
		var dataRequests int32
		server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&dataRequests, 1)
			req := decodePageRequest(t, r)
			var items []map[string]any
			switch req.Pagination.Page {
			case 0:
				items = []map[string]any{{"id": "1"}, {"id": "2"}}
			case 1:
				items = []map[string]any{{"id": "3"}}
			}
			json.NewEncoder(w).Encode(map[string]any{"objects": items})
		})
		defer server.Close()

		c := newTestClient(server.URL)
		recs, err := c.FetchAll(context.Background(), "operations/get", nil, FetchOptions{
			PayloadKey:     "objects",
			IdentityFields: []string{"id"},
			PageSize:       2,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(recs) != 3 {
			t.Errorf("len(recs) = %d, want 3", len(recs))
		}
		if dataRequests != 2 {
			t.Errorf("data requests = %d, want 2", dataRequests)
		}
	})

	t.Run("all duplicate page ends the fetch", func(t *testing.T) {
		var dataRequests int32
		server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&dataRequests, 1)
			// Every page repeats the same two full-size items.
			json.NewEncoder(w).Encode(map[string]any{"objects": []map[string]any{
				{"id": "1"}, {"id": "2"},
			}})
		})
		defer server.Close()

		c := newTestClient(server.URL)
		recs, err := c.FetchAll(context.Background(), "operations/get", nil, FetchOptions{
			PayloadKey:     "objects",
			IdentityFields: []string{"id"},
			PageSize:       2,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(recs) != 2 {
			t.Errorf("len(recs) = %d, want 2", len(recs))
		}
		if dataRequests != 2 {
			t.Errorf("data requests = %d, want 2", dataRequests)
		}
	})

	t.Run("page cap bounds a repeating upstream", func(t *testing.T) {
		var page int32
		server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&page, 1)
			// Full pages, every item new: only the cap can stop this.
			json.NewEncoder(w).Encode(map[string]any{"objects": []map[string]any{
				{"id": fmt.Sprintf("x%d", n)},
			}})
		})
		defer server.Close()

		c := newTestClient(server.URL, WithPageLimit(5))
		recs, err := c.FetchAll(context.Background(), "operations/get", nil, FetchOptions{
			PayloadKey:     "objects",
			IdentityFields: []string{"id"},
			PageSize:       1,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(recs) != 5 {
			t.Errorf("len(recs) = %d, want 5", len(recs))
		}
	})
}

func TestFetchAllMapPayload(t *testing.T) {
	t.Run("object map values become records in key order", func(t *testing.T) {
		server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			req := decodePageRequest(t, r)
			if req.Pagination.Page > 0 {
				json.NewEncoder(w).Encode(map[string]any{"objects": map[string]any{}})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"objects": map[string]any{
				"20": map[string]any{"name": "fund-b"},
				"10": map[string]any{"name": "fund-a"},
			}})
		})
		defer server.Close()

		c := newTestClient(server.URL)
		recs, err := c.FetchAll(context.Background(), "portfolio/get", nil, FetchOptions{
			PayloadKey:    "objects",
			KeepObjectKey: true,
			PageSize:      10,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("len(recs) = %d, want 2", len(recs))
		}
		if recs[0][ObjectKeyField] != "10" || recs[0]["name"] != "fund-a" {
			t.Errorf("recs[0] = %v, want fund-a under key 10", recs[0])
		}
		if recs[1][ObjectKeyField] != "20" {
			t.Errorf("recs[1] object key = %v, want 20", recs[1][ObjectKeyField])
		}
	})

	t.Run("empty map on first page returns empty after the threshold", func(t *testing.T) {
		var dataRequests int32
		server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&dataRequests, 1)
			json.NewEncoder(w).Encode(map[string]any{"objects": map[string]any{}})
		})
		defer server.Close()

		c := newTestClient(server.URL)
		recs, err := c.FetchAll(context.Background(), "portfolio/get", nil, FetchOptions{
			PayloadKey: "objects",
			PageSize:   10,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(recs) != 0 {
			t.Errorf("len(recs) = %d, want 0", len(recs))
		}
		// Page 0 plus two consecutive empty pages.
		if dataRequests != 3 {
			t.Errorf("data requests = %d, want 3", dataRequests)
		}
	})
}

func TestFetchAllSingleShot(t *testing.T) {
	var dataRequests int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dataRequests, 1)
		json.NewEncoder(w).Encode(map[string]any{"prices": []map[string]any{
			{"id": float64(1), "fund_pl": "123.45"},
			{"id": float64(2), "fund_pl": "67.89"},
		}})
	})
	defer server.Close()

	c := newTestClient(server.URL)
	recs, err := c.FetchAll(context.Background(), "prices/get", nil, FetchOptions{
		PayloadKey:     "prices",
		IdentityFields: []string{"id"},
		SingleShot:     true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("len(recs) = %d, want 2", len(recs))
	}
	if dataRequests != 1 {
		t.Errorf("data requests = %d, want 1, single-shot must not paginate", dataRequests)
	}
}

func TestFetchAllReauthentication(t *testing.T) {
	t.Run("recovers once from an expired credential", func(t *testing.T) {
		var tokens int32
		mux := http.NewServeMux()
		mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&tokens, 1)
			json.NewEncoder(w).Encode(map[string]string{
				"token_type":   "Bearer",
				"access_token": fmt.Sprintf("tok%d", n),
			})
		})
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"objects": []map[string]any{{"id": "1"}}})
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		c := newTestClient(server.URL)
		recs, err := c.FetchAll(context.Background(), "operations/get", nil, FetchOptions{
			PayloadKey:     "objects",
			IdentityFields: []string{"id"},
			PageSize:       10,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(recs) != 1 {
			t.Errorf("len(recs) = %d, want 1", len(recs))
		}
		if tokens != 2 {
			t.Errorf("token requests = %d, want 2", tokens)
		}
	})

	t.Run("second unauthorized response is fatal", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{
				"token_type":   "Bearer",
				"access_token": "tok",
			})
		})
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		c := newTestClient(server.URL)
		recs, err := c.FetchAll(context.Background(), "operations/get", nil, FetchOptions{
			PayloadKey: "objects",
			PageSize:   10,
		})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if recs != nil {
			t.Errorf("recs = %v, want nil on fatal fetch failure", recs)
		}
		if !strings.Contains(err.Error(), "401") {
			t.Errorf("error should carry the status, got %v", err)
		}
	})
}

func TestFetchAllErrors(t *testing.T) {
	t.Run("missing payload key", func(t *testing.T) {
		server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"unexpected": []any{}})
		})
		defer server.Close()

		c := newTestClient(server.URL)
		_, err := c.FetchAll(context.Background(), "operations/get", nil, FetchOptions{
			PayloadKey: "objects",
		})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), `"objects"`) {
			t.Errorf("error should name the missing key, got %v", err)
		}
	})

	t.Run("server error aborts the fetch", func(t *testing.T) {
		server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		defer server.Close()

		c := newTestClient(server.URL, WithRetries(0))
		recs, err := c.FetchAll(context.Background(), "operations/get", nil, FetchOptions{
			PayloadKey: "objects",
		})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if recs != nil {
			t.Errorf("recs = %v, want nil", recs)
		}
	})

	t.Run("transient server errors are retried", func(t *testing.T) {
		var attempts int32
		server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			req := decodePageRequest(t, r)
			if req.Pagination.Page > 0 {
				json.NewEncoder(w).Encode(map[string]any{"objects": []any{}})
				return
			}
			if atomic.AddInt32(&attempts, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"objects": []map[string]any{{"id": "1"}}})
		})
		defer server.Close()

		c := newTestClient(server.URL, WithRetries(2))
		recs, err := c.FetchAll(context.Background(), "operations/get", nil, FetchOptions{
			PayloadKey:     "objects",
			IdentityFields: []string{"id"},
			PageSize:       10,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(recs) != 1 {
			t.Errorf("len(recs) = %d, want 1", len(recs))
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})
}

func TestClientOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := NewClient("https://api.example.com", "u", "p", "ci", "cs")
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.pageLimit != DefaultPageLimit {
			t.Errorf("pageLimit = %d, want %d", c.pageLimit, DefaultPageLimit)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("overrides", func(t *testing.T) {
		hc := &http.Client{Timeout: 5 * time.Second}
		c := NewClient("https://api.example.com", "u", "p", "ci", "cs",
			WithHTTPClient(hc),
			WithPageLimit(7),
			WithRetries(1),
			WithRateLimit(2),
		)
		if c.httpClient != hc {
			t.Error("custom HTTP client not set")
		}
		if c.pageLimit != 7 {
			t.Errorf("pageLimit = %d, want 7", c.pageLimit)
		}
		if c.maxRetries != 1 {
			t.Errorf("maxRetries = %d, want 1", c.maxRetries)
		}
		if c.limiter == nil {
			t.Error("limiter should be set")
		}
	})
}
