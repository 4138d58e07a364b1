package apiclient

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// BodyKind records how a response body was interpreted.
type BodyKind int

const (
	BodyEmpty BodyKind = iota
	BodyJSON
	BodyText
	BodyBlob
)

func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyText:
		return "text"
	case BodyBlob:
		return "blob"
	default:
		return "empty"
	}
}

// Response is a fully read, immutable HTTP response. Cached responses are
// shared between callers, so Body must not be modified.
type Response struct {
	Status      int
	Header      http.Header
	ContentType string
	Kind        BodyKind
	Body        []byte
}

func newResponse(status int, header http.Header, body []byte) *Response {
	contentType := header.Get("Content-Type")
	return &Response{
		Status:      status,
		Header:      header.Clone(),
		ContentType: contentType,
		Kind:        classifyBody(contentType, body),
		Body:        body,
	}
}

// classifyBody prefers JSON, then text, then raw bytes.
func classifyBody(contentType string, body []byte) BodyKind {
	if len(body) == 0 {
		return BodyEmpty
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return BodyJSON
	case strings.HasPrefix(mediaType, "text/"):
		return BodyText
	case mediaType == "" && json.Valid(body):
		return BodyJSON
	default:
		return BodyBlob
	}
}

// Text returns the body as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// Decode stores the body into out. JSON bodies are unmarshalled; *string and
// *[]byte targets receive the raw body for any kind.
func (r *Response) Decode(out any) error {
	if r == nil || out == nil {
		return nil
	}
	switch target := out.(type) {
	case *string:
		*target = string(r.Body)
		return nil
	case *[]byte:
		*target = append((*target)[:0], r.Body...)
		return nil
	}
	switch r.Kind {
	case BodyEmpty:
		return nil
	case BodyJSON:
		if err := json.Unmarshal(r.Body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("decode response: cannot decode %s body (%s) into %T", r.Kind, r.ContentType, out)
	}
}
