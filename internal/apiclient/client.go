package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/config"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/logging"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/metrics"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/retry"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultRetryAttempts = 3
	defaultRetryDelay    = time.Second
	defaultRetryMaxDelay = 30 * time.Second
	defaultCacheTTL      = 5 * time.Minute
	defaultCacheSize     = 256
	maxResponseBytes     = 32 << 20
)

var parseRetryAfter = retry.ParseRetryAfter

// RequestOptions tunes a single call. Zero values fall back to client defaults.
type RequestOptions struct {
	Method  string
	Body    any
	Query   url.Values
	Headers http.Header
	// Timeout bounds each attempt, not the whole call.
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	SkipAuth      bool
	SkipCache     bool
	CacheTTL      time.Duration
}

// Client is the resilient backend client. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	policy     retry.Policy
	timeout    time.Duration
	sleeper    retry.Sleeper
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Registry

	cache    *Cache
	cacheOff bool
	cacheTTL time.Duration
	cacheCap int

	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
	errorInterceptors    []ErrorInterceptor
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. Its Timeout should be zero;
// per-attempt deadlines are applied through the request context.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the default per-attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetryPolicy overrides the default retry schedule.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithSleeper overrides how retry waits are performed (useful for tests).
func WithSleeper(sleeper retry.Sleeper) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithClock overrides the time source used for cache expiry and Retry-After dates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCache configures the GET cache lifetime and capacity.
func WithCache(ttl time.Duration, size int) Option {
	return func(c *Client) {
		c.cacheOff = false
		if ttl > 0 {
			c.cacheTTL = ttl
		}
		if size > 0 {
			c.cacheCap = size
		}
	}
}

// WithoutCache disables the GET cache.
func WithoutCache() Option {
	return func(c *Client) {
		c.cacheOff = true
	}
}

// WithLogger sets the logger used for retry and failure diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records request, retry, and cache metrics.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Client) {
		c.metrics = reg
	}
}

// WithRequestInterceptor appends request interceptors in registration order.
func WithRequestInterceptor(interceptors ...RequestInterceptor) Option {
	return func(c *Client) {
		c.requestInterceptors = append(c.requestInterceptors, interceptors...)
	}
}

// WithResponseInterceptor appends response interceptors in registration order.
func WithResponseInterceptor(interceptors ...ResponseInterceptor) Option {
	return func(c *Client) {
		c.responseInterceptors = append(c.responseInterceptors, interceptors...)
	}
}

// WithErrorInterceptor appends error interceptors in registration order.
func WithErrorInterceptor(interceptors ...ErrorInterceptor) Option {
	return func(c *Client) {
		c.errorInterceptors = append(c.errorInterceptors, interceptors...)
	}
}

// New constructs a client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("api client: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("api client: base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{},
		policy: retry.Policy{
			Attempts:  defaultRetryAttempts,
			BaseDelay: defaultRetryDelay,
			MaxDelay:  defaultRetryMaxDelay,
		},
		timeout:  defaultTimeout,
		sleeper:  retry.Sleep,
		now:      time.Now,
		logger:   logging.NewNop(),
		cacheTTL: defaultCacheTTL,
		cacheCap: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sleeper == nil {
		c.sleeper = retry.Sleep
	}
	if !c.cacheOff {
		c.cache = NewCache(c.cacheCap, c.now)
	}
	return c, nil
}

// NewFromConfig builds the production client: request IDs, bearer auth,
// optional debug logging, and logout on 401.
func NewFromConfig(cfg *config.Config, tokens TokenSource, logout LogoutHandler, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("api client: config required")
	}
	logger = logging.NewComponentLogger(logger, "api")
	base := []Option{
		WithTimeout(cfg.RequestTimeout()),
		WithRetryPolicy(retry.Policy{
			Attempts:  cfg.API.RetryAttempts,
			BaseDelay: cfg.RetryDelay(),
			MaxDelay:  cfg.RetryMaxDelay(),
		}),
		WithLogger(logger),
		WithRequestInterceptor(RequestIDInterceptor(nil), AuthInterceptor(tokens)),
		WithErrorInterceptor(UnauthorizedInterceptor(logout, logger)),
	}
	if cfg.API.DebugRequests {
		base = append(base, WithRequestInterceptor(DebugLogInterceptor(logger)))
	}
	if cfg.API.CacheEnabled {
		base = append(base, WithCache(cfg.CacheTTL(), cfg.API.CacheSize))
	} else {
		base = append(base, WithoutCache())
	}
	return New(cfg.API.BaseURL, append(base, opts...)...)
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

// InvalidatePrefix drops cached responses whose path starts with prefix.
// Relative prefixes are resolved against the base URL path.
func (c *Client) InvalidatePrefix(prefix string) {
	if c.cache == nil {
		return
	}
	if !strings.HasPrefix(prefix, "http://") && !strings.HasPrefix(prefix, "https://") {
		prefix = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(prefix, "/")
	} else if parsed, err := url.Parse(prefix); err == nil {
		prefix = parsed.Path
	}
	if n := c.cache.InvalidatePrefix(prefix); n > 0 {
		c.logger.Debug("cache invalidated", logging.String("prefix", prefix), logging.Int("entries", n))
	}
}

// Get issues a GET and decodes the body into out.
func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, endpoint, RequestOptions{Method: http.MethodGet}, out)
}

// Post issues a POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: body}, out)
}

// Patch issues a PATCH with a JSON body and decodes the response into out.
func (c *Client) Patch(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, endpoint, RequestOptions{Method: http.MethodPatch, Body: body}, out)
}

// Delete issues a DELETE and decodes the response into out.
func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, endpoint, RequestOptions{Method: http.MethodDelete}, out)
}

// Do performs the call and decodes the body into out (which may be nil).
func (c *Client) Do(ctx context.Context, endpoint string, opts RequestOptions, out any) error {
	resp, err := c.Send(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Send performs the call and returns the parsed response.
func (c *Client) Send(ctx context.Context, endpoint string, opts RequestOptions) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}
	opts.Method = method
	target, err := c.resolve(endpoint, opts.Query)
	if err != nil {
		return nil, &Error{Kind: KindHTTP, Method: method, URL: endpoint, Err: err}
	}
	req := &Request{
		Method:  method,
		URL:     target,
		Header:  cloneHeader(opts.Headers),
		Body:    opts.Body,
		Options: opts,
	}

	for _, intercept := range c.requestInterceptors {
		next, err := intercept(ctx, req)
		if err != nil {
			return nil, c.fail(ctx, req, c.wrapInterceptorError(req, err))
		}
		if next != nil {
			ctx = next
		}
	}

	cacheable := c.cache != nil && req.Method == http.MethodGet && !req.Options.SkipCache
	key := CacheKey(req.Method, req.URL.String())
	if cacheable {
		if resp, ok := c.cache.Get(key); ok {
			c.metrics.ObserveCache(true)
			return resp, nil
		}
		c.metrics.ObserveCache(false)
	}

	payload, err := encodeBody(req)
	if err != nil {
		return nil, c.fail(ctx, req, &Error{Kind: KindHTTP, Method: req.Method, URL: req.URL.String(), Err: err})
	}

	policy := c.policy
	if req.Options.RetryAttempts > 0 {
		policy.Attempts = req.Options.RetryAttempts
	}
	if req.Options.RetryDelay > 0 {
		policy.BaseDelay = req.Options.RetryDelay
	}
	timeout := c.timeout
	if req.Options.Timeout > 0 {
		timeout = req.Options.Timeout
	}

	var resp *Response
	loop := retry.Loop{
		Policy:   policy,
		Sleep:    c.sleeper,
		Classify: classifyRetry,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			kind := KindOf(err)
			c.metrics.ObserveRetry(string(kind))
			logging.WithContext(ctx, c.logger).Debug("api request retry scheduled",
				logging.String("method", req.Method),
				logging.String("url", req.URL.String()),
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", policy.MaxAttempts()),
				logging.Duration("delay", delay),
				logging.String("kind", string(kind)),
			)
		},
	}
	err = loop.Run(ctx, func(ctx context.Context, _ int) error {
		r, err := c.attempt(ctx, req, payload, timeout)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		apiErr, ok := AsError(err)
		if !ok {
			apiErr = &Error{Kind: KindNetwork, Method: req.Method, URL: req.URL.String(), Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil && apiErr.Kind != KindAbort {
			apiErr = callerContextError(req, ctxErr)
		}
		return nil, c.fail(ctx, req, apiErr)
	}

	for _, intercept := range c.responseInterceptors {
		if err := intercept(ctx, req, resp); err != nil {
			return nil, c.fail(ctx, req, c.wrapInterceptorError(req, err))
		}
	}

	if cacheable {
		ttl := req.Options.CacheTTL
		if ttl <= 0 {
			ttl = c.cacheTTL
		}
		c.cache.Put(key, resp, ttl)
	}
	c.metrics.ObserveRequest(req.Method, "ok")
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req *Request, payload []byte, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	rawURL := req.URL.String()
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, rawURL, body)
	if err != nil {
		return nil, &Error{Kind: KindHTTP, Method: req.Method, URL: rawURL, Err: err}
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if payload != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	started := time.Now()
	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveAttempt(req.Method, 0, time.Since(started).Seconds())
		return nil, transportError(ctx, attemptCtx, req, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	c.metrics.ObserveAttempt(req.Method, res.StatusCode, time.Since(started).Seconds())
	if err != nil {
		return nil, transportError(ctx, attemptCtx, req, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, statusError(req.Method, rawURL, res.StatusCode, res.Header, data, c.now())
	}
	return newResponse(res.StatusCode, res.Header, data), nil
}

func (c *Client) fail(ctx context.Context, req *Request, err *Error) *Error {
	for _, intercept := range c.errorInterceptors {
		intercept(ctx, req, err)
	}
	c.metrics.ObserveRequest(req.Method, string(err.Kind))
	level := slog.LevelWarn
	if err.Kind == KindAbort || err.Kind == KindNotFound || err.Kind == KindValidation {
		level = slog.LevelDebug
	}
	logging.WithContext(ctx, c.logger).Log(ctx, level, "api request failed",
		logging.String("method", req.Method),
		logging.String("url", req.URL.String()),
		logging.String("kind", string(err.Kind)),
		logging.Int("status", err.Status),
		logging.Error(err),
	)
	return err
}

func (c *Client) wrapInterceptorError(req *Request, err error) *Error {
	if apiErr, ok := AsError(err); ok {
		return apiErr
	}
	return &Error{Kind: KindHTTP, Method: req.Method, URL: req.URL.String(), Message: err.Error(), Err: err}
}

func (c *Client) resolve(endpoint string, query url.Values) (*url.URL, error) {
	endpoint = strings.TrimSpace(endpoint)
	var target *url.URL
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		target = parsed
	} else {
		parsed, err := url.Parse(c.baseURL.String() + "/" + strings.TrimLeft(endpoint, "/"))
		if err != nil {
			return nil, err
		}
		target = parsed
	}
	if len(query) > 0 {
		merged := target.Query()
		for key, values := range query {
			for _, v := range values {
				merged.Add(key, v)
			}
		}
		target.RawQuery = merged.Encode()
	}
	return target, nil
}

func classifyRetry(err error) (time.Duration, bool) {
	apiErr, ok := AsError(err)
	if !ok || !apiErr.Retryable() {
		return 0, false
	}
	if apiErr.Kind == KindRateLimit {
		return apiErr.RetryAfter, true
	}
	return 0, true
}

func transportError(parent, attemptCtx context.Context, req *Request, err error) *Error {
	if parentErr := parent.Err(); parentErr != nil {
		return callerContextError(req, parentErr)
	}
	kind := KindNetwork
	var netErr net.Error
	switch {
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &Error{Kind: kind, Method: req.Method, URL: req.URL.String(), Err: err}
}

func callerContextError(req *Request, err error) *Error {
	kind := KindAbort
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Method: req.Method, URL: req.URL.String(), Err: err}
}

func encodeBody(req *Request) ([]byte, error) {
	switch body := req.Body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return body, nil
	case string:
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		}
		return []byte(body), nil
	case json.RawMessage:
		return body, nil
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		return encoded, nil
	}
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}
