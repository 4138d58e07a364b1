package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/apiclient"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"
)

func TestUserMessage(t *testing.T) {
	apiErr := &apiclient.Error{Kind: apiclient.KindValidation, Status: 400, Message: "Images not ready yet"}
	assert.Equal(t, "Images not ready yet", workflow.UserMessage(fmt.Errorf("select avatar: %w", apiErr)))

	bare := &apiclient.Error{Kind: apiclient.KindNetwork}
	assert.Equal(t, "Unable to reach the server. Check your connection.", workflow.UserMessage(bare))

	assert.Equal(t, "The request was cancelled.", workflow.UserMessage(context.Canceled))
	assert.Equal(t, "The server took too long to respond.", workflow.UserMessage(fmt.Errorf("fetch: %w", context.DeadlineExceeded)))
	assert.Empty(t, workflow.UserMessage(nil))
}

func TestUserMessageHidesTransportDetail(t *testing.T) {
	unauthorized := &apiclient.Error{Kind: apiclient.KindUnauthorized, Method: "GET", URL: "http://api.test/postings/p1", Status: 401}
	msg := workflow.UserMessage(fmt.Errorf("track post: %w", unauthorized))
	assert.Equal(t, "Your session has expired. Please sign in again.", msg)
	assert.NotContains(t, msg, "http://")

	dial := &url.Error{Op: "Get", URL: "http://api.test/stream", Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	assert.Equal(t, "Unable to reach the server. Check your connection.", workflow.UserMessage(dial))

	assert.Equal(t, "Something went wrong. Please try again.", workflow.UserMessage(errors.New("GET http://api.test/x: unauthorized (401)")))
}

func TestUserMessageKeepsSentinelDetail(t *testing.T) {
	errNotReady := workflow.NewError("post is not ready")
	assert.Equal(t, "post is not ready", workflow.UserMessage(errNotReady))
	assert.Equal(t, "post is not ready: status is pending", workflow.UserMessage(fmt.Errorf("%w: status is pending", errNotReady)))
	assert.Equal(t, "post is not ready", workflow.UserMessage(fmt.Errorf("generate videos for http://api.test/p1: %w", errNotReady)))
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", errNotReady), errNotReady)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "quota exceeded", workflow.FailureMessage("quota exceeded", "Post generation failed"))
	assert.Equal(t, "Post generation failed", workflow.FailureMessage("", "Post generation failed"))
	assert.NotEmpty(t, workflow.FailureMessage("", ""))
}
