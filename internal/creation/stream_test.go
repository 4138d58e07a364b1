package creation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/creation"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/retry"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/testsupport"
)

func TestFlowOverStreamManager(t *testing.T) {
	backend := testsupport.NewBackend(t)
	newFakeCreation(backend)
	dialer := testsupport.NewFakeDialer()
	manager, err := stream.NewManager(stream.Options{
		Dialer:               dialer,
		Clock:                testsupport.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Backoff:              retry.Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second},
		MaxReconnectAttempts: 10,
	})
	require.NoError(t, err)
	t.Cleanup(manager.Destroy)

	recorder := &notifications.Recorder{}
	flow, err := creation.NewFlow(creation.Deps{
		API:      creation.NewAPI(backend.Client(t)),
		Stream:   manager,
		Sessions: testsupport.NewCredentials(t),
		Notifier: recorder,
	})
	require.NoError(t, err)
	t.Cleanup(flow.Close)

	ctx := context.Background()
	require.NoError(t, flow.Start(ctx, "Tokyo, Japan", "minimalist tech reviewer"))
	resource := stream.SessionResource(flow.State().SessionID)

	var conn *testsupport.FakeConn
	require.Eventually(t, func() bool {
		conn = dialer.Last()
		return manager.State() == stream.StateConnected && conn != nil
	}, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, []stream.ResourceID{resource}, conn.Resources)

	urls := []string{"u1", "u2", "u3", "u4"}
	conn.PushEvent(stream.EventStatusUpdate, resource, map[string]any{"status": "images_ready", "avatar_urls": urls})
	conn.PushEvent(stream.EventStatusUpdate, resource, map[string]any{"status": "images_ready", "avatar_urls": urls})
	conn.PushEvent(stream.EventStatusUpdate, stream.SessionResource("someone-else"), map[string]any{"status": "failed"})

	require.Eventually(t, func() bool {
		return flow.State().Step == creation.StepSelectAvatar
	}, 2*time.Second, 2*time.Millisecond)
	state := flow.State()
	assert.Equal(t, urls, state.AvatarURLs)
	assert.Empty(t, state.SelectedAvatar)
	assert.False(t, state.Failed)
	assert.Equal(t, 1, recorder.Count(notifications.EventAvatarsReady))

	require.NoError(t, flow.Discard(ctx))
	require.Eventually(t, func() bool {
		return manager.State() == stream.StateDisconnected && len(dialer.Open()) == 0
	}, 2*time.Second, 2*time.Millisecond)
}
