package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/apiclient"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/config"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/creation"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/credentials"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/logging"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/metrics"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/orchestrator"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/posts"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/statestore"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
)

// Options customizes Open. Zero values select production defaults.
type Options struct {
	Logger *slog.Logger
	// Notices receives console notices. Nil disables console output; ntfy
	// still applies when configured.
	Notices io.Writer
	// Notifier replaces the config-derived notification service.
	Notifier notifications.Service
	// KV replaces the on-disk state database.
	KV statestore.KV
	// Dialer replaces the HTTP event stream dialer.
	Dialer stream.Dialer
	// StreamClock replaces the wall clock used for heartbeats and reconnects.
	StreamClock stream.Clock
	// HTTPClient is used for API calls.
	HTTPClient *http.Client
	// ClientOptions are appended after the config-derived client options.
	ClientOptions []apiclient.Option
	// NewID generates orchestrator ids.
	NewID func() string
}

// Runtime is the set of shared services for one process.
type Runtime struct {
	Config      *config.Config
	Logger      *slog.Logger
	Metrics     *metrics.Registry
	Credentials *credentials.Store
	Client      *apiclient.Client
	Stream      *stream.Manager
	Notifier    notifications.Service

	newID   func() string
	closers []func() error

	closeOnce sync.Once
	closeErr  error
}

// Open builds a Runtime from cfg. The caller must Close it.
func Open(cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("studio: config required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		newID:   opts.NewID,
	}

	kv := opts.KV
	if kv == nil {
		store, err := statestore.Open(cfg.StatePath())
		if err != nil {
			return nil, fmt.Errorf("open state: %w", err)
		}
		rt.closers = append(rt.closers, store.Close)
		kv = store
	}
	rt.Credentials = credentials.New(kv,
		credentials.WithOverride(cfg.API.Token),
		credentials.WithLogger(logger),
	)

	rt.Notifier = opts.Notifier
	if rt.Notifier == nil {
		rt.Notifier = notifications.NewService(cfg, opts.Notices)
	}

	clientOpts := []apiclient.Option{apiclient.WithMetrics(rt.Metrics)}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, apiclient.WithHTTPClient(opts.HTTPClient))
	}
	clientOpts = append(clientOpts, opts.ClientOptions...)
	client, err := apiclient.NewFromConfig(cfg, rt.Credentials, rt.Credentials, logger, clientOpts...)
	if err != nil {
		rt.closeAll()
		return nil, fmt.Errorf("api client: %w", err)
	}
	rt.Client = client

	dialer := opts.Dialer
	if dialer == nil {
		httpDialer, err := stream.NewHTTPDialer(cfg.API.BaseURL, cfg.Stream.Path, nil, rt.Credentials,
			stream.WithConnectTimeout(cfg.HeartbeatTimeout()))
		if err != nil {
			rt.closeAll()
			return nil, err
		}
		dialer = httpDialer
	}
	streamOpts := stream.OptionsFromConfig(cfg, dialer, logger, rt.Metrics)
	streamOpts.Clock = opts.StreamClock
	manager, err := stream.NewManager(streamOpts)
	if err != nil {
		rt.closeAll()
		return nil, err
	}
	rt.Stream = manager

	rt.wire()
	return rt, nil
}

func (r *Runtime) wire() {
	unsubscribe := r.Credentials.OnLogout(func(reason string) {
		r.Client.ClearCache()
		r.Stream.Disconnect()
		payload := notifications.Payload{"reason": reason}
		if reason != "unauthorized" {
			payload["message"] = "Signed out."
		}
		r.publish(notifications.EventLoggedOut, payload)
	})
	removeListener := r.Stream.AddStateListener(func(state stream.State) {
		if state == stream.StateError {
			r.publish(notifications.EventStreamLost, notifications.Payload{"workflow": "stream"})
		}
	})
	r.closers = append(r.closers, func() error {
		unsubscribe()
		removeListener()
		return nil
	})
}

func (r *Runtime) publish(event notifications.Event, payload notifications.Payload) {
	if err := r.Notifier.Publish(context.Background(), event, payload); err != nil {
		logging.WarnWithContext(r.Logger, "notification failed",
			"notification_failed", "notice not delivered",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

// Creation builds a creation flow on the shared services.
func (r *Runtime) Creation() (*creation.Flow, error) {
	return creation.NewFlow(creation.Deps{
		API:      creation.NewAPI(r.Client),
		Stream:   r.Stream,
		Sessions: r.Credentials,
		Notifier: r.Notifier,
		Logger:   r.Logger,
		Metrics:  r.Metrics,
	})
}

// Orchestrator builds an orchestrator flow on the shared services.
func (r *Runtime) Orchestrator() (*orchestrator.Flow, error) {
	return orchestrator.NewFlow(orchestrator.Deps{
		API:      orchestrator.NewAPI(r.Client),
		Stream:   r.Stream,
		Sessions: r.Credentials,
		Notifier: r.Notifier,
		Logger:   r.Logger,
		Metrics:  r.Metrics,
		NewID:    r.newID,
	})
}

// Posts returns the post API bound to the shared client.
func (r *Runtime) Posts() *posts.API {
	return posts.NewAPI(r.Client)
}

// PostTracker builds a tracker for a single post.
func (r *Runtime) PostTracker() (*posts.Tracker, error) {
	return posts.NewTracker(r.postDeps())
}

// Feed builds a post feed for one influencer.
func (r *Runtime) Feed() (*posts.Feed, error) {
	return posts.NewFeed(r.postDeps())
}

func (r *Runtime) postDeps() posts.Deps {
	return posts.Deps{
		API:      r.Posts(),
		Stream:   r.Stream,
		Notifier: r.Notifier,
		Logger:   r.Logger,
		Metrics:  r.Metrics,
	}
}

// Close destroys the stream manager and releases the state database. It is
// safe to call more than once.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		if r.Stream != nil {
			r.Stream.Destroy()
		}
		r.closeErr = r.closeAll()
	})
	return r.closeErr
}

func (r *Runtime) closeAll() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
