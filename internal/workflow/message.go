package workflow

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/apiclient"
)

const fallbackMessage = "Something went wrong. Please try again."

// Error is a failure whose text is written for the user. Workflow packages
// declare their sentinels with NewError so UserMessage may show them.
type Error struct {
	msg string
}

// NewError returns a user-facing sentinel.
func NewError(msg string) *Error {
	return &Error{msg: msg}
}

func (e *Error) Error() string { return e.msg }

// UserMessage returns the sentinel text.
func (e *Error) UserMessage() string { return e.msg }

// UserMessage extracts the human readable text for err. Status codes, URLs,
// and wrapping context are never shown: failures are mapped through their
// kind, and only user-facing sentinels keep their own text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if apiErr, ok := apiclient.AsError(err); ok {
		return apiErr.UserMessage()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return apiclient.MessageFor(apiclient.KindAbort)
	case errors.Is(err, context.DeadlineExceeded):
		return apiclient.MessageFor(apiclient.KindTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apiclient.MessageFor(apiclient.KindTimeout)
		}
		return apiclient.MessageFor(apiclient.KindNetwork)
	}
	var userErr *Error
	if errors.As(err, &userErr) {
		// "<sentinel>: <detail>" keeps the detail; any outer wrapping drops it.
		if text := strings.TrimSpace(err.Error()); strings.HasPrefix(text, userErr.msg) {
			return text
		}
		return userErr.msg
	}
	var msg interface{ UserMessage() string }
	if errors.As(err, &msg) {
		if text := strings.TrimSpace(msg.UserMessage()); text != "" {
			return text
		}
	}
	return fallbackMessage
}

// FailureMessage picks the text for a failure reported by the server,
// preferring the error detail over the generic status message.
func FailureMessage(errText, message string) string {
	if text := strings.TrimSpace(errText); text != "" {
		return text
	}
	if text := strings.TrimSpace(message); text != "" {
		return text
	}
	return fallbackMessage
}
