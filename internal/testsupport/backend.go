package testsupport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/apiclient"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/retry"
)

// Backend is an httptest server with a request log.
type Backend struct {
	*httptest.Server
	Mux *http.ServeMux

	mu       sync.Mutex
	requests []string
}

// NewBackend starts a server and registers cleanup.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{Mux: http.NewServeMux()}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		b.mu.Unlock()
		b.Mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.Close)
	return b
}

// Requests returns "METHOD /path" for every request served.
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

// Client returns an apiclient for the server with a single attempt per call
// and no cache.
func (b *Backend) Client(t testing.TB, opts ...apiclient.Option) *apiclient.Client {
	t.Helper()
	base := []apiclient.Option{
		apiclient.WithRetryPolicy(retry.Policy{Attempts: 1}),
		apiclient.WithoutCache(),
	}
	client, err := apiclient.New(b.URL, append(base, opts...)...)
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	return client
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads the request body into out. An empty body leaves out
// untouched.
func DecodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
