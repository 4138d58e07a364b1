package posts

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/logging"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"
)

// Feed mirrors every post of one influencer, newest first.
type Feed struct {
	api      *API
	notifier notifications.Service
	logger   *slog.Logger

	mu           sync.Mutex
	influencerID string
	order        []string
	posts        map[string]State

	follow    *workflow.Subscription
	observers workflow.Observers[[]State]
}

// NewFeed returns an empty feed.
func NewFeed(deps Deps) (*Feed, error) {
	if err := deps.validate("post feed"); err != nil {
		return nil, err
	}
	return &Feed{
		api:      deps.API,
		notifier: deps.notifier(),
		logger:   logging.NewComponentLogger(deps.Logger, "feed"),
		posts:    make(map[string]State),
		follow:   workflow.NewSubscription(deps.Stream),
	}, nil
}

// Open loads the influencer's posts and follows influencer:<id>. Opening a
// different influencer replaces the previous one.
func (f *Feed) Open(ctx context.Context, influencerID string) error {
	influencerID = strings.TrimSpace(influencerID)
	if influencerID == "" {
		return ErrInvalidRequest
	}
	list, err := f.api.List(ctx, influencerID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.influencerID = influencerID
	f.order = f.order[:0]
	clear(f.posts)
	for _, p := range list {
		f.order = append(f.order, p.ID)
		f.posts[p.ID] = Load(State{}, p)
	}
	f.mu.Unlock()
	f.follow.Follow(stream.InfluencerResource(influencerID), f.handle)
	f.logger.Info("feed opened",
		logging.Resource(string(stream.InfluencerResource(influencerID))),
		logging.Int("posts", len(list)),
	)
	f.emit()
	return nil
}

// Reload refetches the list, bypassing the cached copy. Posts the server no
// longer lists are dropped; the rest keep their furthest known status.
func (f *Feed) Reload(ctx context.Context) error {
	influencerID := f.InfluencerID()
	if influencerID == "" {
		return ErrNotTracking
	}
	f.api.ForgetList(influencerID)
	list, err := f.api.List(ctx, influencerID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	if f.influencerID != influencerID {
		f.mu.Unlock()
		return nil
	}
	posts := make(map[string]State, len(list))
	order := make([]string, 0, len(list))
	for _, p := range list {
		order = append(order, p.ID)
		if s, ok := f.posts[p.ID]; ok {
			posts[p.ID], _ = Apply(s, UpdateFromPost(p))
			continue
		}
		posts[p.ID] = Load(State{}, p)
	}
	f.order, f.posts = order, posts
	f.mu.Unlock()
	f.emit()
	return nil
}

// InfluencerID returns the open influencer.
func (f *Feed) InfluencerID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.influencerID
}

// Posts returns every post, newest first.
func (f *Feed) Posts() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Post returns one post.
func (f *Feed) Post(id string) (State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.posts[id]
	return s.Clone(), ok
}

// OnChange registers fn for every feed change and returns its removal.
func (f *Feed) OnChange(fn func([]State)) func() {
	return f.observers.Add(fn)
}

// Remove deletes a post and drops it from the feed.
func (f *Feed) Remove(ctx context.Context, id string) error {
	if err := f.api.Delete(ctx, id, f.InfluencerID()); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.posts, id)
	f.order = slices.DeleteFunc(f.order, func(v string) bool { return v == id })
	f.mu.Unlock()
	f.emit()
	return nil
}

// Close drops the subscription.
func (f *Feed) Close() {
	f.follow.Stop()
}

func (f *Feed) handle(ev stream.Event) {
	pu, ok := ev.(stream.PostUpdate)
	if !ok {
		f.logger.Debug("feed event ignored", logging.String("event", ev.Name()))
		return
	}
	if pu.PostID == "" {
		return
	}
	influencerID := ev.Resource().ID()
	f.mu.Lock()
	if f.influencerID != influencerID {
		f.mu.Unlock()
		return
	}
	s, known := f.posts[pu.PostID]
	if !known {
		s = State{Post: Post{ID: pu.PostID, InfluencerID: influencerID}}
		f.order = slices.Insert(f.order, 0, pu.PostID)
	}
	next, notices := Apply(s, UpdateFromFeed(pu))
	f.posts[pu.PostID] = next
	f.mu.Unlock()

	// The cached list no longer matches the server.
	f.api.ForgetList(influencerID)
	if !known {
		f.logger.Info("feed post added", logging.Resource(string(stream.PostResource(pu.PostID))))
	}
	workflow.Publish(context.Background(), f.notifier, notices)
	f.emit()
}

func (f *Feed) snapshotLocked() []State {
	out := make([]State, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.posts[id].Clone())
	}
	return out
}

func (f *Feed) emit() {
	f.mu.Lock()
	snapshot := f.snapshotLocked()
	f.mu.Unlock()
	f.observers.Emit(snapshot)
}
