package stream_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func TestHTTPDialerURLCarriesUnion(t *testing.T) {
	dialer, err := stream.NewHTTPDialer("http://api.test/v1/", "/stream", nil, nil)
	require.NoError(t, err)

	raw := dialer.URL([]stream.ResourceID{"session:abc", "post:123", "influencer:xyz"})
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/v1/stream", parsed.Path)
	assert.Equal(t, "influencer:xyz,post:123,session:abc", parsed.Query().Get("resources"))
}

func TestHTTPDialerStreamsFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: connected\ndata: {\"resources\":[%q]}\n\n", r.URL.Query().Get("resources"))
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: status_update\ndata: {\"resource_id\":\"post:1\",\"data\":{\"status\":\"ready\"}}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	dialer, err := stream.NewHTTPDialer(srv.URL, "/stream", srv.Client(), staticToken("tok"))
	require.NoError(t, err)
	conn, err := dialer.Dial(context.Background(), []stream.ResourceID{"post:1"})
	require.NoError(t, err)

	frame, err := conn.Next()
	require.NoError(t, err)
	assert.Equal(t, "connected", frame.Event)

	frame, err = conn.Next()
	require.NoError(t, err)
	assert.True(t, frame.IsComment())

	frame, err = conn.Next()
	require.NoError(t, err)
	ev, err := stream.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "ready", ev.(stream.StatusUpdate).Status)

	require.NoError(t, conn.Close())
	_, err = conn.Next()
	assert.ErrorIs(t, err, stream.ErrStreamClosed)
}

func TestHTTPDialerRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dialer, err := stream.NewHTTPDialer(srv.URL, "", srv.Client(), nil)
	require.NoError(t, err)
	_, err = dialer.Dial(context.Background(), []stream.ResourceID{"post:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPDialerGivesUpWhenHeadersNeverArrive(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	dialer, err := stream.NewHTTPDialer(srv.URL, "/stream", srv.Client(), nil, stream.WithConnectTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = dialer.Dial(context.Background(), []stream.ResourceID{"post:1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
