package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Kind classifies a failed call.
type Kind string

const (
	KindNetwork      Kind = "network"
	KindTimeout      Kind = "timeout"
	KindAbort        Kind = "abort"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindRateLimit    Kind = "rate_limit"
	KindServer       Kind = "server"
	KindHTTP         Kind = "http"
)

// Sentinels matched by (*Error).Is so callers can write errors.Is(err, ErrNotFound).
var (
	ErrNetwork      = errors.New("network error")
	ErrTimeout      = errors.New("request timed out")
	ErrAbort        = errors.New("request aborted")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrRateLimit    = errors.New("rate limited")
	ErrServer       = errors.New("server error")
	ErrHTTP         = errors.New("http error")
)

var sentinels = map[Kind]error{
	KindNetwork:      ErrNetwork,
	KindTimeout:      ErrTimeout,
	KindAbort:        ErrAbort,
	KindUnauthorized: ErrUnauthorized,
	KindForbidden:    ErrForbidden,
	KindNotFound:     ErrNotFound,
	KindValidation:   ErrValidation,
	KindRateLimit:    ErrRateLimit,
	KindServer:       ErrServer,
	KindHTTP:         ErrHTTP,
}

var defaultMessages = map[Kind]string{
	KindNetwork:      "Unable to reach the server. Check your connection.",
	KindTimeout:      "The server took too long to respond.",
	KindAbort:        "The request was cancelled.",
	KindUnauthorized: "Your session has expired. Please sign in again.",
	KindForbidden:    "You do not have access to this resource.",
	KindNotFound:     "The requested resource was not found.",
	KindValidation:   "Some fields are invalid.",
	KindRateLimit:    "Too many requests. Please wait a moment.",
	KindServer:       "The server encountered an error.",
	KindHTTP:         "The request failed.",
}

// Error is the single failure type returned by Client.
type Error struct {
	Kind   Kind
	Method string
	URL    string
	Status int
	// Message is the server-provided human readable message, if any.
	Message string
	// Code is a machine-readable code from the error body, if any.
	Code string
	// Fields maps field names to messages for validation failures.
	Fields     map[string]string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Method != "" || e.URL != "" {
		b.WriteString(e.Method)
		b.WriteByte(' ')
		b.WriteString(e.URL)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Status > 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && target == sentinel
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindServer, KindRateLimit:
		return true
	default:
		return false
	}
}

// UserMessage returns text suitable for display.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		return strings.Join(parts, "; ")
	}
	return MessageFor(e.Kind)
}

// MessageFor returns the display text for a failure of kind k.
func MessageFor(k Kind) string {
	if msg, ok := defaultMessages[k]; ok {
		return msg
	}
	return defaultMessages[KindHTTP]
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	if apiErr, ok := AsError(err); ok {
		return apiErr.Kind
	}
	return ""
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status >= http.StatusInternalServerError:
		return KindServer
	default:
		return KindHTTP
	}
}

// errorBody covers the error shapes the backend emits: FastAPI's
// {"detail": "..."} and {"detail": [{"loc": [...], "msg": "..."}]}, the
// envelope {"error", "code", "message"}, and a generic {"errors": {...}}.
type errorBody struct {
	Detail  json.RawMessage   `json:"detail"`
	Message string            `json:"message"`
	Error   json.RawMessage   `json:"error"`
	Code    json.RawMessage   `json:"code"`
	Errors  map[string]string `json:"errors"`
}

type validationItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// statusError builds the classified error for a non-2xx response.
func statusError(method, rawURL string, status int, header http.Header, body []byte, now time.Time) *Error {
	e := &Error{
		Kind:   kindForStatus(status),
		Method: method,
		URL:    rawURL,
		Status: status,
	}
	parseErrorBody(e, body)
	if e.Kind == KindRateLimit || e.Kind == KindServer {
		if d, ok := parseRetryAfter(header.Get("Retry-After"), now); ok {
			e.RetryAfter = d
		}
	}
	return e
}

func parseErrorBody(e *Error, body []byte) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return
	}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		if len(trimmed) <= 200 && !strings.HasPrefix(trimmed, "<") {
			e.Message = trimmed
		}
		return
	}
	e.Code = rawScalar(parsed.Code)
	if len(parsed.Detail) > 0 {
		var detail string
		if json.Unmarshal(parsed.Detail, &detail) == nil {
			e.Message = detail
		} else {
			var items []validationItem
			if json.Unmarshal(parsed.Detail, &items) == nil && len(items) > 0 {
				e.Fields = make(map[string]string, len(items))
				for _, item := range items {
					e.Fields[fieldName(item.Loc)] = item.Msg
				}
			}
		}
	}
	if len(parsed.Errors) > 0 {
		if e.Fields == nil {
			e.Fields = make(map[string]string, len(parsed.Errors))
		}
		for k, v := range parsed.Errors {
			e.Fields[k] = v
		}
	}
	if e.Message == "" {
		e.Message = firstNonEmpty(parsed.Message, rawScalar(parsed.Error))
	}
}

func fieldName(loc []any) string {
	if len(loc) == 0 {
		return "request"
	}
	parts := make([]string, 0, len(loc))
	for i, p := range loc {
		s := fmt.Sprint(p)
		if i == 0 && (s == "body" || s == "query" || s == "path") && len(loc) > 1 {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ".")
}

func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
