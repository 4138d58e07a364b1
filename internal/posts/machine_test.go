package posts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/testsupport"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"
)

func fold(s State, updates ...Update) (State, []workflow.Notice) {
	var all []workflow.Notice
	for _, u := range updates {
		var notices []workflow.Notice
		s, notices = Apply(s, u)
		all = append(all, notices...)
	}
	return s, all
}

func countEvent(notices []workflow.Notice, event notifications.Event) int {
	n := 0
	for _, notice := range notices {
		if notice.Event == event {
			n++
		}
	}
	return n
}

func statusEvent(t *testing.T, id string, data map[string]any) Update {
	t.Helper()
	ev, ok := testsupport.StatusEvent(stream.PostResource(id), data).(stream.StatusUpdate)
	require.True(t, ok)
	u, err := UpdateFromStatus(ev)
	require.NoError(t, err)
	return u
}

func TestPendingToReadyRendersSlides(t *testing.T) {
	s, notices := Begin(State{}, Post{ID: "p1", InfluencerID: "inf1", Status: StatusPending, Prompt: "beach day"})
	require.True(t, s.Loading())

	var more []workflow.Notice
	s, more = fold(s,
		statusEvent(t, "p1", map[string]any{"status": "generating_story", "message": "Writing story..."}),
		statusEvent(t, "p1", map[string]any{
			"status":  "generating_images",
			"message": "Generating images...",
			"content": map[string]any{"caption": "Sun's out", "slides": []map[string]string{{"caption": "one", "visual_scene": "pier"}}},
		}),
		statusEvent(t, "p1", map[string]any{"status": "ready", "image_urls": []string{"a", "b"}, "message": "Post ready!"}),
	)
	notices = append(notices, more...)

	assert.Equal(t, StatusReady, s.Post.Status)
	assert.False(t, s.Loading())
	assert.Empty(t, s.Post.Error)
	slides := s.Slides()
	require.Len(t, slides, 2)
	assert.Equal(t, "a", slides[0].ImageURL)
	assert.Equal(t, "b", slides[1].ImageURL)
	assert.Equal(t, "Sun's out", s.Post.Content)
	require.NotNil(t, s.Post.Story)
	assert.Equal(t, "pier", s.Post.Story.Slides[0].VisualScene)
	assert.Equal(t, 1, countEvent(notices, notifications.EventPostCreated))
	assert.Equal(t, 1, countEvent(notices, notifications.EventPostReady))
	assert.Equal(t, notifications.EventPostCreated, notices[0].Event)
}

func TestFailureWhileGeneratingHalts(t *testing.T) {
	s, _ := fold(State{},
		Update{PostID: "p1", Status: StatusPending},
		Update{PostID: "p1", Status: StatusGeneratingImages},
	)
	require.True(t, s.Loading())

	s, notices := Apply(s, statusEvent(t, "p1", map[string]any{
		"status": "failed", "error": "quota exceeded", "message": "Post generation failed",
	}))
	assert.Equal(t, StatusFailed, s.Post.Status)
	assert.Equal(t, "quota exceeded", s.Post.Error)
	assert.False(t, s.Loading())
	assert.Equal(t, 1, countEvent(notices, notifications.EventWorkflowFailed))

	for _, status := range []Status{StatusGeneratingImages, StatusReady, StatusVideoReady, StatusFailed} {
		next, notices := Apply(s, Update{PostID: "p1", Status: status})
		assert.Equal(t, StatusFailed, next.Post.Status, "status %s must not move a failed post", status)
		assert.Empty(t, notices)
	}
}

func TestLateEarlierStatusIgnored(t *testing.T) {
	s, _ := fold(State{},
		Update{PostID: "p1", Status: StatusReady, ImageURLs: []string{"a"}},
		Update{PostID: "p1", Status: StatusGeneratingImages, ImageURLs: []string{"stale"}},
	)
	assert.Equal(t, StatusReady, s.Post.Status)
	assert.Equal(t, []string{"a"}, s.Post.ImageURLs)
}

func TestUpdatesForOtherPostIgnored(t *testing.T) {
	s, _ := Apply(State{}, Update{PostID: "p1", Status: StatusPending})
	s, notices := Apply(s, Update{PostID: "p2", Status: StatusReady})
	assert.Equal(t, StatusPending, s.Post.Status)
	assert.Empty(t, notices)
}

func TestSlidesPreferCaptionedSlides(t *testing.T) {
	p := Post{
		ImageURLs: []string{"x", "y"},
		ImageSlides: []stream.ImageSlide{
			{ImageURL: "a", Caption: "first"},
			{ImageURL: "b", Caption: "second"},
		},
		Videos: []stream.VideoClip{{SlideIndex: 1, VideoURL: "v1"}, {SlideIndex: 9, VideoURL: "stray"}},
	}
	assert.Equal(t, []Slide{
		{Index: 0, ImageURL: "a", Caption: "first"},
		{Index: 1, ImageURL: "b", Caption: "second", VideoURL: "v1"},
	}, p.Slides())
	assert.Empty(t, Post{}.Slides())
}

func TestVideoLifecycle(t *testing.T) {
	s := Load(State{}, Post{ID: "p1", Status: StatusReady, ImageURLs: []string{"a", "b", "c", "d"}})
	require.True(t, s.Settled())
	require.NoError(t, s.CanGenerateVideos())

	s = VideoRequested(s, VideoJob{PostID: "p1", VideoStatus: "pending"})
	assert.True(t, s.Loading())
	assert.False(t, s.Settled())
	assert.ErrorIs(t, s.CanGenerateVideos(), ErrNotReady)

	clips := []stream.VideoClip{{SlideIndex: 0, VideoURL: "v0"}}
	s, notices := fold(s,
		Update{PostID: "p1", Status: StatusGeneratingVideo, Stage: "creating_grid"},
		Update{PostID: "p1", Status: StatusGeneratingVideo, Stage: "splitting_video"},
		Update{PostID: "p1", Status: StatusVideoReady, Videos: clips},
	)
	assert.Equal(t, StatusVideoReady, s.Post.Status)
	assert.Equal(t, "splitting_video", s.Stage)
	assert.Equal(t, "v0", s.Slides()[0].VideoURL)
	assert.True(t, s.Settled())
	assert.Equal(t, 1, countEvent(notices, notifications.EventVideoReady))
}

func TestVideoFailureIsFinal(t *testing.T) {
	s := Load(State{}, Post{ID: "p1", Status: StatusReady, ImageURLs: []string{"a"}})
	s = VideoRequested(s, VideoJob{})
	s, notices := Apply(s, UpdateFromVideo(stream.VideoStatus{Status: "failed", Error: "provider down"}))
	assert.Equal(t, StatusVideoFailed, s.Post.Status)
	assert.Equal(t, "provider down", s.Post.Error)
	assert.Equal(t, 1, countEvent(notices, notifications.EventWorkflowFailed))
	assert.Equal(t, []string{"a"}, s.Post.ImageURLs, "a failed video keeps the slides")

	assert.ErrorIs(t, s.CanGenerateVideos(), ErrNotReady)
	assert.True(t, s.Settled())

	s, notices = Apply(s, Update{PostID: "p1", Status: StatusVideoFailed, Error: "provider down again"})
	assert.Empty(t, notices, "a repeated failure is announced once")
}

func TestVideoQueueStatusOnlyMerges(t *testing.T) {
	s := Load(State{}, Post{ID: "p1", Status: StatusReady})
	s, notices := Apply(s, UpdateFromVideo(stream.VideoStatus{Status: "pending", Message: "Video generation queued"}))
	assert.Equal(t, StatusReady, s.Post.Status)
	assert.Equal(t, "Video generation queued", s.Message)
	assert.False(t, s.Settled())
	assert.Empty(t, notices)
}

func TestLoadDoesNotReannounce(t *testing.T) {
	s := Load(State{}, Post{ID: "p1", Status: StatusReady, ImageURLs: []string{"a"}})
	_, notices := Apply(s, Update{PostID: "p1", Status: StatusReady})
	assert.Empty(t, notices)

	s = Load(State{}, Post{ID: "p2", Status: StatusFailed, Error: "quota exceeded"})
	assert.Equal(t, "quota exceeded", s.Post.Error)
	_, notices = Apply(s, Update{PostID: "p2", Status: StatusFailed})
	assert.Empty(t, notices)
}

func TestRetryRequest(t *testing.T) {
	s := Load(State{}, Post{ID: "p1", InfluencerID: "inf1", Prompt: "beach day", Platform: "Instagram", Status: StatusFailed})
	req, err := RetryRequest(s)
	require.NoError(t, err)
	assert.Equal(t, CreateRequest{InfluencerID: "inf1", Prompt: "beach day", Platform: "Instagram"}, req)

	_, err = RetryRequest(Load(State{}, Post{ID: "p2", Status: StatusReady}))
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestStatusNeverRegresses(t *testing.T) {
	statuses := []Status{
		StatusPending, StatusGeneratingStory, StatusGeneratingImages, StatusReady,
		StatusGeneratingVideo, StatusVideoReady, StatusPublished,
	}
	rapid.Check(t, func(t *rapid.T) {
		seq := rapid.SliceOf(rapid.SampledFrom(statuses)).Draw(t, "statuses")
		s := State{}
		best := -1
		for _, status := range seq {
			s, _ = Apply(s, Update{PostID: "p1", Status: status})
			ord, ok := ladder.Ordinal(s.Post.Status)
			if !ok {
				t.Fatalf("unexpected status %q", s.Post.Status)
			}
			if ord < best {
				t.Fatalf("status regressed to %q", s.Post.Status)
			}
			best = ord
		}
	})
}
