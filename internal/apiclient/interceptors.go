package apiclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/logging"
)

// Request is the mutable view of an outbound call handed to interceptors.
// Interceptors may rewrite the URL, headers, body, and options.
type Request struct {
	Method  string
	URL     *url.URL
	Header  http.Header
	Body    any
	Options RequestOptions
}

// RequestInterceptor runs once per call before the cache lookup. It may return
// a derived context that is used for the remainder of the call.
type RequestInterceptor func(ctx context.Context, req *Request) (context.Context, error)

// ResponseInterceptor runs on every successful, non-cached response.
type ResponseInterceptor func(ctx context.Context, req *Request, resp *Response) error

// ErrorInterceptor observes each terminal failure exactly once per call.
type ErrorInterceptor func(ctx context.Context, req *Request, err *Error)

// TokenSource supplies the bearer credential. An empty token means anonymous.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// LogoutHandler clears the stored credential and notifies listeners.
type LogoutHandler interface {
	Logout(ctx context.Context, reason string) error
}

// AuthInterceptor attaches "Authorization: Bearer <token>" unless the call
// opted out with SkipAuth or already carries an Authorization header.
func AuthInterceptor(tokens TokenSource) RequestInterceptor {
	return func(ctx context.Context, req *Request) (context.Context, error) {
		if tokens == nil || req.Options.SkipAuth || req.Header.Get("Authorization") != "" {
			return ctx, nil
		}
		token, err := tokens.Token(ctx)
		if err != nil {
			return ctx, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return ctx, nil
	}
}

// RequestIDInterceptor stamps X-Request-ID and records it on the context so
// log lines for the call carry the same correlation_id.
func RequestIDInterceptor(newID func() string) RequestInterceptor {
	if newID == nil {
		newID = uuid.NewString
	}
	return func(ctx context.Context, req *Request) (context.Context, error) {
		id := req.Header.Get("X-Request-ID")
		if id == "" {
			id = newID()
			req.Header.Set("X-Request-ID", id)
		}
		return logging.WithRequestID(ctx, id), nil
	}
}

// DebugLogInterceptor logs every outbound call at debug level.
func DebugLogInterceptor(logger *slog.Logger) RequestInterceptor {
	return func(ctx context.Context, req *Request) (context.Context, error) {
		logging.WithContext(ctx, logger).Debug("api request",
			logging.String("method", req.Method),
			logging.String("url", req.URL.String()),
			logging.Bool("skip_cache", req.Options.SkipCache),
			logging.Bool("skip_auth", req.Options.SkipAuth),
		)
		return ctx, nil
	}
}

// UnauthorizedInterceptor clears credentials and broadcasts logout when an
// authenticated call is rejected with 401. Calls made with SkipAuth (such as
// login itself) are left alone.
func UnauthorizedInterceptor(handler LogoutHandler, logger *slog.Logger) ErrorInterceptor {
	return func(ctx context.Context, req *Request, err *Error) {
		if handler == nil || err.Kind != KindUnauthorized || req.Options.SkipAuth {
			return
		}
		if logoutErr := handler.Logout(ctx, "unauthorized"); logoutErr != nil {
			logging.WithContext(ctx, logger).Warn("credential clear failed",
				logging.Error(logoutErr),
				logging.String(logging.FieldEventType, "logout_failed"),
			)
		}
	}
}
