package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
)

// Envelope is the {data, code, message} wrapper returned by the entity routes.
// Some routes report failures inside a 200 envelope ({error, code, message}).
type Envelope[T any] struct {
	Data    T               `json:"data"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// DoEnvelope performs the call and unwraps the envelope's data. An envelope
// whose code is an error status is converted into an *Error.
func DoEnvelope[T any](ctx context.Context, c *Client, endpoint string, opts RequestOptions) (T, error) {
	var zero T
	resp, err := c.Send(ctx, endpoint, opts)
	if err != nil {
		return zero, err
	}
	var env Envelope[T]
	if err := resp.Decode(&env); err != nil {
		return zero, &Error{Kind: KindHTTP, Method: opts.Method, URL: endpoint, Err: err}
	}
	errText := rawScalar(env.Error)
	if env.Code >= http.StatusBadRequest || errText != "" {
		if opts.Method == "" || opts.Method == http.MethodGet {
			c.forget(endpoint, opts)
		}
		status := env.Code
		if status < http.StatusBadRequest {
			status = http.StatusBadRequest
		}
		return zero, &Error{
			Kind:    kindForStatus(status),
			Method:  opts.Method,
			URL:     endpoint,
			Status:  status,
			Message: firstNonEmpty(env.Message, errText),
		}
	}
	return env.Data, nil
}

// forget drops the cache entry for a GET whose 200 body carried an error.
func (c *Client) forget(endpoint string, opts RequestOptions) {
	if c.cache == nil {
		return
	}
	target, err := c.resolve(endpoint, opts.Query)
	if err != nil {
		return
	}
	c.cache.entries.Remove(CacheKey(http.MethodGet, target.String()))
}
