package posts

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/logging"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/metrics"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"
)

// Deps wires a Tracker or a Feed.
type Deps struct {
	API      *API
	Stream   workflow.Subscriber
	Notifier notifications.Service
	Logger   *slog.Logger
	Metrics  *metrics.Registry
}

func (d Deps) validate(what string) error {
	if d.API == nil {
		return errors.New(what + " requires an API")
	}
	if d.Stream == nil {
		return errors.New(what + " requires a stream subscriber")
	}
	return nil
}

func (d Deps) notifier() notifications.Service {
	if d.Notifier == nil {
		return notifications.Noop()
	}
	return d.Notifier
}

// Tracker follows the generation of one post. It is safe for concurrent
// use; stream events arrive on the manager's goroutine.
type Tracker struct {
	api      *API
	notifier notifications.Service
	logger   *slog.Logger
	metrics  *metrics.Registry

	mu    sync.Mutex
	state State

	follow    *workflow.Subscription
	observers workflow.Observers[State]
}

// NewTracker returns a tracker with no post.
func NewTracker(deps Deps) (*Tracker, error) {
	if err := deps.validate("post tracker"); err != nil {
		return nil, err
	}
	return &Tracker{
		api:      deps.API,
		notifier: deps.notifier(),
		logger:   logging.NewComponentLogger(deps.Logger, workflowName),
		metrics:  deps.Metrics,
		follow:   workflow.NewSubscription(deps.Stream),
	}, nil
}

// State returns a snapshot of the tracked post.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

// OnChange registers fn for every state change and returns its removal.
func (t *Tracker) OnChange(fn func(State)) func() {
	return t.observers.Add(fn)
}

// Create starts a post and follows it. Generation begins server side before
// the subscription exists, so the post is fetched once more after
// subscribing.
func (t *Tracker) Create(ctx context.Context, req CreateRequest) (Post, error) {
	return t.create(ctx, req, 0)
}

func (t *Tracker) create(ctx context.Context, req CreateRequest, attempt int) (Post, error) {
	post, err := t.api.Create(ctx, req)
	if err != nil {
		return Post{}, t.report(ctx, err)
	}
	if post.ReferenceImageURL == "" {
		post.ReferenceImageURL = req.ReferenceImageURL
	}
	if post.Prompt == "" {
		post.Prompt = req.Prompt
	}
	if post.InfluencerID == "" {
		post.InfluencerID = req.InfluencerID
	}
	t.update(ctx, func(s State) (State, []workflow.Notice) {
		s.Attempt = attempt
		return Begin(s, post)
	})
	t.follow.Follow(stream.PostResource(post.ID), t.handle)
	t.logger.Info("post created",
		logging.Resource(string(stream.PostResource(post.ID))),
		logging.String("influencer_id", post.InfluencerID),
	)
	if err := t.Refresh(ctx); err != nil {
		t.logger.Warn("post refresh after create failed", logging.Error(err))
	}
	return post, nil
}

// Track fetches an existing post once and follows it unless it has settled.
func (t *Tracker) Track(ctx context.Context, id string) error {
	post, err := t.api.Get(ctx, id)
	if err != nil {
		return t.report(ctx, err)
	}
	t.update(ctx, func(s State) (State, []workflow.Notice) {
		return Load(State{}, post), nil
	})
	if t.State().Settled() {
		t.follow.Stop()
		return nil
	}
	t.follow.Follow(stream.PostResource(post.ID), t.handle)
	return nil
}

// Refresh refetches the tracked post.
func (t *Tracker) Refresh(ctx context.Context) error {
	id := t.postID()
	if id == "" {
		return ErrNotTracking
	}
	post, err := t.api.Get(ctx, id)
	if err != nil {
		return t.report(ctx, err)
	}
	t.apply(ctx, UpdateFromPost(post))
	return nil
}

// GenerateVideos requests videos for the ready post and follows it until
// they arrive. The subscription is made first so no early frame is missed.
func (t *Tracker) GenerateVideos(ctx context.Context, opts VideoOptions) (VideoJob, error) {
	state := t.State()
	if err := state.CanGenerateVideos(); err != nil {
		return VideoJob{}, t.report(ctx, err)
	}
	id := state.Post.ID
	wasFollowing := t.follow.Current() == stream.PostResource(id)
	t.follow.Follow(stream.PostResource(id), t.handle)
	job, err := t.api.GenerateVideos(ctx, id, opts)
	if err != nil {
		if !wasFollowing {
			t.follow.StopIf(stream.PostResource(id))
		}
		return VideoJob{}, t.report(ctx, err)
	}
	t.update(ctx, func(s State) (State, []workflow.Notice) {
		if s.Post.ID != id {
			return s, nil
		}
		return VideoRequested(s, job), nil
	})
	t.logger.Info("video generation requested", logging.Resource(string(stream.PostResource(id))))
	return job, nil
}

// Retry creates a new post from the prompt of a failed one.
func (t *Tracker) Retry(ctx context.Context) (Post, error) {
	state := t.State()
	req, err := RetryRequest(state)
	if err != nil {
		return Post{}, t.report(ctx, err)
	}
	t.follow.Stop()
	t.logger.Info("post retry", logging.Resource(string(stream.PostResource(state.Post.ID))))
	return t.create(ctx, req, state.Attempt+1)
}

// Delete removes the post server side, then stops following it, then clears
// the local state.
func (t *Tracker) Delete(ctx context.Context) error {
	state := t.State()
	if state.Post.ID == "" {
		return ErrNotTracking
	}
	if err := t.api.Delete(ctx, state.Post.ID, state.Post.InfluencerID); err != nil {
		return t.report(ctx, err)
	}
	t.follow.Stop()
	t.update(ctx, func(State) (State, []workflow.Notice) { return State{}, nil })
	t.logger.Info("post deleted", logging.Resource(string(stream.PostResource(state.Post.ID))))
	return nil
}

// Close drops the subscription.
func (t *Tracker) Close() {
	t.follow.Stop()
}

func (t *Tracker) handle(ev stream.Event) {
	var u Update
	switch e := ev.(type) {
	case stream.StatusUpdate:
		var err error
		if u, err = UpdateFromStatus(e); err != nil {
			t.logger.Warn("post event dropped", logging.String("event", e.Name()), logging.Error(err))
			return
		}
	case stream.VideoStatus:
		u = UpdateFromVideo(e)
	default:
		t.logger.Debug("post event ignored", logging.String("event", ev.Name()))
		return
	}
	t.apply(context.Background(), u)
}

// apply folds u when it names the tracked post and releases the
// subscription once the post settles.
func (t *Tracker) apply(ctx context.Context, u Update) {
	applied := false
	t.update(ctx, func(s State) (State, []workflow.Notice) {
		if s.Post.ID == "" || (u.PostID != "" && u.PostID != s.Post.ID) {
			return s, nil
		}
		applied = true
		return Apply(s, u)
	})
	if !applied {
		return
	}
	state := t.State()
	if state.Settled() {
		t.follow.StopIf(stream.PostResource(state.Post.ID))
	}
}

func (t *Tracker) update(ctx context.Context, fn func(State) (State, []workflow.Notice)) {
	t.mu.Lock()
	prev := t.state
	next, notices := fn(prev)
	t.state = next
	snapshot := next.Clone()
	t.mu.Unlock()

	if prev.Post.Status != next.Post.Status && next.Post.Status != "" {
		t.metrics.ObserveTransition(workflowName, string(next.Post.Status))
		t.logger.Info("post status changed",
			logging.Resource(string(stream.PostResource(next.Post.ID))),
			logging.Workflow(workflowName),
			logging.String("from", string(prev.Post.Status)),
			logging.String("to", string(next.Post.Status)),
		)
	}
	workflow.Publish(ctx, t.notifier, notices)
	t.observers.Emit(snapshot)
}

func (t *Tracker) report(ctx context.Context, err error) error {
	message := workflow.UserMessage(err)
	resource := ""
	if id := t.postID(); id != "" {
		resource = string(stream.PostResource(id))
	}
	_ = t.notifier.Publish(ctx, notifications.EventWorkflowFailed, notifications.Payload{
		"workflow": workflowName,
		"error":    message,
		"resource": resource,
	})
	return err
}

func (t *Tracker) postID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Post.ID
}
