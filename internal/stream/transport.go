package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Conn is one open physical connection.
type Conn interface {
	// Next blocks until the next frame arrives or the connection fails.
	Next() (Frame, error)
	Close() error
}

// Dialer opens a connection subscribed to resources. A nil error means the
// server accepted the stream (the "open" signal).
type Dialer interface {
	Dial(ctx context.Context, resources []ResourceID) (Conn, error)
}

// TokenSource supplies an optional bearer credential for the stream.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("stream closed")

const defaultConnectTimeout = 30 * time.Second

// HTTPDialer opens SSE connections with net/http.
type HTTPDialer struct {
	base           *url.URL
	path           string
	client         *http.Client
	tokens         TokenSource
	connectTimeout time.Duration
}

// DialerOption customizes an HTTPDialer.
type DialerOption func(*HTTPDialer)

// WithConnectTimeout bounds how long Dial waits for response headers.
func WithConnectTimeout(d time.Duration) DialerOption {
	return func(h *HTTPDialer) {
		if d > 0 {
			h.connectTimeout = d
		}
	}
}

// NewHTTPDialer returns a dialer for base+path. client should not carry an
// overall timeout because the response body stays open indefinitely; Dial
// bounds only the wait for headers.
func NewHTTPDialer(baseURL, path string, client *http.Client, tokens TokenSource, opts ...DialerOption) (*HTTPDialer, error) {
	baseURL = strings.TrimSpace(baseURL)
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse stream base url: %w", err)
	}
	if path == "" {
		path = "/stream"
	}
	if client == nil {
		client = &http.Client{}
	}
	d := &HTTPDialer{base: base, path: path, client: client, tokens: tokens, connectTimeout: defaultConnectTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// URL builds the connection URL for resources.
func (d *HTTPDialer) URL(resources []ResourceID) string {
	endpoint := *d.base
	endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + d.path
	values := url.Values{}
	values.Set("resources", JoinResources(resources))
	endpoint.RawQuery = values.Encode()
	return endpoint.String()
}

// Dial issues the GET and waits for response headers.
func (d *HTTPDialer) Dial(ctx context.Context, resources []ResourceID) (Conn, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL(resources), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if d.tokens != nil {
		if token, tokenErr := d.tokens.Token(ctx); tokenErr == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	timer := time.AfterFunc(d.connectTimeout, cancel)
	resp, err := d.client.Do(req)
	if !timer.Stop() {
		if err == nil {
			_ = resp.Body.Close()
		}
		cancel()
		return nil, fmt.Errorf("stream did not answer within %s: %w", d.connectTimeout, context.DeadlineExceeded)
	}
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &httpConn{body: resp.Body, decoder: NewDecoder(resp.Body), cancel: cancel}, nil
}

type httpConn struct {
	body    io.ReadCloser
	decoder *Decoder
	cancel  context.CancelFunc

	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func (c *httpConn) Next() (Frame, error) {
	frame, err := c.decoder.Next()
	if err != nil {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return Frame{}, ErrStreamClosed
		}
		return Frame{}, err
	}
	return frame, nil
}

func (c *httpConn) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()
		err = c.body.Close()
	})
	return err
}
