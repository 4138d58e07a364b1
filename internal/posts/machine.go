package posts

import (
	"fmt"
	"strconv"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"
)

const workflowName = "posts"

var ladder = workflow.NewLadder([]Status{StatusFailed, StatusVideoFailed},
	StatusPending,
	StatusGeneratingStory,
	StatusGeneratingImages,
	StatusReady,
	StatusGeneratingVideo,
	StatusVideoReady,
	StatusPublished,
)

// Video job states reported in videoStatus and video_status frames.
const (
	videoPending    = "pending"
	videoProcessing = "processing"
	videoCompleted  = "completed"
	videoFailed     = "failed"
)

// State is the client view of one post.
type State struct {
	Post Post `json:"post" yaml:"post"`
	// Message and Stage are the latest progress text from the generator.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Stage   string `json:"stage,omitempty" yaml:"stage,omitempty"`

	Attempt   int                `json:"attempt,omitempty" yaml:"attempt,omitempty"`
	Announced workflow.Announced `json:"-" yaml:"-"`
}

// Clone returns a deep copy safe to hand to observers.
func (s State) Clone() State {
	s.Post = s.Post.clone()
	s.Announced = append(workflow.Announced(nil), s.Announced...)
	return s
}

// Loading reports whether a generation spinner belongs on the post.
func (s State) Loading() bool {
	return s.Post.Status.Generating() || s.videoQueued()
}

// Settled reports whether no further frames are expected without a client
// action.
func (s State) Settled() bool {
	return s.Post.Status.Settled() && !s.videoQueued()
}

// videoQueued covers the gap between a video request and the first
// generating_video frame.
func (s State) videoQueued() bool {
	if s.Post.Status != StatusReady {
		return false
	}
	return s.Post.VideoStatus == videoPending || s.Post.VideoStatus == videoProcessing
}

// Slides returns the rendered slides.
func (s State) Slides() []Slide {
	return s.Post.Slides()
}

// Update is a server report about a post, from a fetch or a frame.
type Update struct {
	PostID       string
	InfluencerID string
	Status       Status
	Message      string
	Stage        string
	Error        string
	Content      string
	Story        *Story
	ImageURLs    []string
	ImageSlides  []stream.ImageSlide
	GridImageURL string
	Videos       []stream.VideoClip
	VideoStatus  string
	Prompt       string
	Platform     string
	CreatedAt    string
}

// UpdateFromPost converts a fetched post.
func UpdateFromPost(p Post) Update {
	return Update{
		PostID:       p.ID,
		InfluencerID: p.InfluencerID,
		Status:       p.Status,
		Error:        p.Error,
		Content:      p.Content,
		Story:        p.Story,
		ImageURLs:    p.ImageURLs,
		ImageSlides:  p.ImageSlides,
		GridImageURL: p.GridImageURL,
		Videos:       p.Videos,
		VideoStatus:  p.VideoStatus,
		Prompt:       p.Prompt,
		Platform:     p.Platform,
		CreatedAt:    p.CreatedAt,
	}
}

// UpdateFromStatus converts a status_update pushed on post:<id>.
func UpdateFromStatus(ev stream.StatusUpdate) (Update, error) {
	u := Update{
		PostID:      ev.Resource().ID(),
		Status:      Status(ev.Status),
		Message:     ev.Message,
		Stage:       ev.Stage,
		Error:       ev.Error,
		ImageURLs:   ev.ImageURLs,
		ImageSlides: ev.ImageSlides,
		Videos:      ev.VideoURLs,
	}
	if len(ev.Content) > 0 && string(ev.Content) != "null" {
		var story Story
		if err := (stream.Envelope{Data: ev.Content}).DecodeData(&story); err != nil {
			return Update{}, fmt.Errorf("decode story: %w", err)
		}
		u.Story = &story
		u.Content = story.Caption
	}
	return u, nil
}

// UpdateFromVideo converts a video_status pushed on post:<id>. Only the
// outcome of the job moves the post status; queue states are payload.
func UpdateFromVideo(ev stream.VideoStatus) Update {
	u := Update{
		PostID:      ev.Resource().ID(),
		Message:     ev.Message,
		Error:       ev.Error,
		Videos:      ev.VideoURLs,
		VideoStatus: ev.Status,
	}
	switch ev.Status {
	case videoFailed, "error", string(StatusVideoFailed):
		u.Status = StatusVideoFailed
	case videoCompleted, "complete", string(StatusVideoReady):
		u.Status = StatusVideoReady
	}
	return u
}

// UpdateFromFeed converts a post_update pushed on influencer:<id>.
func UpdateFromFeed(ev stream.PostUpdate) Update {
	return Update{
		PostID:       ev.PostID,
		InfluencerID: ev.Resource().ID(),
		Status:       Status(ev.Status),
		Message:      ev.Message,
		Error:        ev.Error,
		ImageURLs:    ev.ImageURLs,
		ImageSlides:  ev.ImageSlides,
		Videos:       ev.VideoURLs,
	}
}

// Apply folds u into s and returns the notices the transition earned.
//
// Updates for another post are ignored, as is any status behind the
// furthest one seen. An update without a status, or repeating the current
// one, only fills in payload fields. failed and video_failed are admitted
// from any other status and hold until the user retries.
func Apply(s State, u Update) (State, []workflow.Notice) {
	if u.PostID != "" && s.Post.ID != "" && u.PostID != s.Post.ID {
		return s, nil
	}
	if s.Post.ID == "" {
		s.Post.ID = u.PostID
	}
	if u.Status == "" {
		return merge(s, u), nil
	}
	admitted := ladder.Admit(s.Post.Status, u.Status)
	if !admitted && u.Status != s.Post.Status {
		return s, nil
	}
	s = merge(s, u)
	if !admitted {
		return s, nil
	}

	var notices []workflow.Notice
	s.Post.Status = u.Status
	resource := string(stream.PostResource(s.Post.ID))
	attempt := strconv.Itoa(s.Attempt)
	switch u.Status {
	case StatusFailed, StatusVideoFailed:
		s.Post.Error = workflow.FailureMessage(u.Error, u.Message)
		if u.Status == StatusVideoFailed {
			s.Post.VideoStatus = videoFailed
		}
		notices = s.announce(notices, string(u.Status)+"/"+attempt, notifications.EventWorkflowFailed, notifications.Payload{
			"workflow": workflowName,
			"error":    s.Post.Error,
			"resource": resource,
		})
	case StatusReady:
		s.Post.Error = ""
		notices = s.announce(notices, "ready", notifications.EventPostReady, notifications.Payload{
			"slides":   strconv.Itoa(len(s.Slides())),
			"resource": resource,
		})
	case StatusVideoReady:
		s.Post.Error = ""
		s.Post.VideoStatus = videoCompleted
		notices = s.announce(notices, "video_ready/"+attempt, notifications.EventVideoReady, notifications.Payload{
			"videos":   strconv.Itoa(len(s.Post.Videos)),
			"resource": resource,
		})
	default:
		s.Post.Error = ""
	}
	return s, notices
}

func (s *State) announce(notices []workflow.Notice, key string, event notifications.Event, payload notifications.Payload) []workflow.Notice {
	next, first := s.Announced.First(key)
	if !first {
		return notices
	}
	s.Announced = next
	return append(notices, workflow.Notice{Event: event, Payload: payload})
}

func merge(s State, u Update) State {
	p := s.Post.clone()
	if u.InfluencerID != "" {
		p.InfluencerID = u.InfluencerID
	}
	if u.Content != "" {
		p.Content = u.Content
	}
	if u.Story != nil {
		story := *u.Story
		p.Story = &story
		p = p.clone()
	}
	if len(u.ImageURLs) > 0 {
		p.ImageURLs = append([]string(nil), u.ImageURLs...)
	}
	if len(u.ImageSlides) > 0 {
		p.ImageSlides = append([]stream.ImageSlide(nil), u.ImageSlides...)
	}
	if u.GridImageURL != "" {
		p.GridImageURL = u.GridImageURL
	}
	if len(u.Videos) > 0 {
		p.Videos = append([]stream.VideoClip(nil), u.Videos...)
	}
	if u.VideoStatus != "" {
		p.VideoStatus = u.VideoStatus
	}
	if u.Prompt != "" {
		p.Prompt = u.Prompt
	}
	if u.Platform != "" {
		p.Platform = u.Platform
	}
	if u.CreatedAt != "" {
		p.CreatedAt = u.CreatedAt
	}
	s.Post = p
	if u.Message != "" {
		s.Message = u.Message
	}
	if u.Stage != "" {
		s.Stage = u.Stage
	}
	return s
}

// Begin starts tracking a freshly created post.
func Begin(s State, p Post) (State, []workflow.Notice) {
	next := State{Attempt: s.Attempt}
	next.Post.ReferenceImageURL = p.ReferenceImageURL
	next, notices := Apply(next, UpdateFromPost(p))
	created := workflow.Notice{
		Event: notifications.EventPostCreated,
		Payload: notifications.Payload{
			"influencer_id": p.InfluencerID,
			"resource":      string(stream.PostResource(p.ID)),
		},
	}
	return next, append([]workflow.Notice{created}, notices...)
}

// Load starts tracking an existing post. Notices are dropped: a post that
// finished before it was opened is not news.
func Load(s State, p Post) State {
	next := State{Attempt: s.Attempt}
	next.Post.ReferenceImageURL = p.ReferenceImageURL
	next, _ = Apply(next, UpdateFromPost(p))
	next.Announced = settledAnnouncements(next)
	return next
}

// settledAnnouncements marks the outcomes already reached by a loaded post
// so later repeats of the same status stay quiet.
func settledAnnouncements(s State) workflow.Announced {
	var a workflow.Announced
	attempt := strconv.Itoa(s.Attempt)
	switch s.Post.Status {
	case StatusReady, StatusGeneratingVideo, StatusPublished:
		a, _ = a.First("ready")
	case StatusVideoReady:
		a, _ = a.First("ready")
		a, _ = a.First("video_ready/" + attempt)
	case StatusFailed, StatusVideoFailed:
		a, _ = a.First(string(s.Post.Status) + "/" + attempt)
	}
	return a
}

// CanGenerateVideos reports whether a video request is allowed.
func (s State) CanGenerateVideos() error {
	switch {
	case s.Post.ID == "":
		return ErrNotTracking
	case s.Post.Status == StatusVideoFailed:
		return fmt.Errorf("%w: video generation failed for this post and the server does not accept another request", ErrNotReady)
	case s.Post.Status != StatusReady:
		return fmt.Errorf("%w: videos need a ready post, status is %s", ErrNotReady, s.Post.Status)
	case s.videoQueued():
		return fmt.Errorf("%w: video generation already in progress", ErrNotReady)
	}
	return nil
}

// VideoRequested marks a queued video job on a ready post.
func VideoRequested(s State, job VideoJob) State {
	s = s.Clone()
	s.Post.Error = ""
	s.Post.VideoStatus = videoPending
	if job.VideoStatus != "" {
		s.Post.VideoStatus = job.VideoStatus
	}
	s.Message = "Video generation queued"
	s.Stage = ""
	return s
}

// RetryRequest rebuilds the create request of a failed post.
func RetryRequest(s State) (CreateRequest, error) {
	if s.Post.Status != StatusFailed {
		return CreateRequest{}, fmt.Errorf("%w: only a failed post can be retried", ErrNotReady)
	}
	if s.Post.InfluencerID == "" || s.Post.Prompt == "" {
		return CreateRequest{}, fmt.Errorf("%w: the original prompt is unknown", ErrInvalidRequest)
	}
	return CreateRequest{
		InfluencerID:      s.Post.InfluencerID,
		Prompt:            s.Post.Prompt,
		Platform:          s.Post.Platform,
		ReferenceImageURL: s.Post.ReferenceImageURL,
	}, nil
}
