package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/logging"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/studio"
)

var (
	// ErrAlreadyRunning is returned when another watcher holds the lock.
	ErrAlreadyRunning = errors.New("another aura watch instance is already running")
	// ErrNothingToWatch is returned when no session was restored and no
	// target was named.
	ErrNothingToWatch = errors.New("nothing to watch: no active sessions and no --post or --influencer given")
)

// Options selects what a watcher follows.
type Options struct {
	Posts       []string
	Influencers []string
	// Out receives transition lines. Nil discards them.
	Out io.Writer
	// ExitWhenSettled stops the watcher once every target is finished or
	// waiting on user input.
	ExitWhenSettled bool
	// Now stamps transition lines. Defaults to time.Now.
	Now func() time.Time
}

// Watcher follows workflows until interrupted.
type Watcher struct {
	rt     *studio.Runtime
	opts   Options
	lock   *flock.Flock
	logger *slog.Logger
	out    *printer

	mu          sync.Mutex
	targets     []*target
	ready       bool
	cancel      context.CancelFunc
	metricsAddr string
}

// New prepares a watcher on rt. The lock is taken by Run.
func New(rt *studio.Runtime, opts Options) (*Watcher, error) {
	if rt == nil {
		return nil, errors.New("watch: runtime required")
	}
	return &Watcher{
		rt:     rt,
		opts:   opts,
		lock:   flock.New(rt.Config.LockPath()),
		logger: logging.NewComponentLogger(rt.Logger, "watch"),
		out:    newPrinter(opts.Out, opts.Now),
	}, nil
}

// Run blocks until the context is cancelled, a termination signal arrives,
// the metrics server fails, or (with ExitWhenSettled) every target settles.
// The event stream is destroyed on return.
func (w *Watcher) Run(ctx context.Context) error {
	ok, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		_ = w.lock.Unlock()
	}()
	defer w.rt.Stream.Destroy()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(signalCtx)
	defer cancel()

	var resync atomic.Bool
	removeListener := w.rt.Stream.AddStateListener(func(s stream.State) {
		w.logger.Debug("stream state", logging.String("state", string(s)))
		switch s {
		case stream.StateReconnecting, stream.StateError:
			resync.Store(true)
			w.out.note("stream", strings.ToLower(string(s)))
		case stream.StateConnected:
			if resync.Swap(false) {
				go w.refresh(runCtx)
			}
		}
	})
	defer removeListener()

	targets, err := w.attach(runCtx)
	defer func() {
		for _, t := range targets {
			t.close()
		}
	}()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return ErrNothingToWatch
	}
	w.logger.Info("watch started",
		logging.String(logging.FieldEventType, "watch_started"),
		logging.String("targets", targetNames(targets)),
	)

	g, gctx := errgroup.WithContext(runCtx)
	if addr := strings.TrimSpace(w.rt.Config.Metrics.ListenAddr); addr != "" {
		srv, err := newMetricsServer(addr, w.rt.Metrics.Handler())
		if err != nil {
			return err
		}
		w.mu.Lock()
		w.metricsAddr = srv.Addr()
		w.mu.Unlock()
		w.logger.Info("metrics server listening", logging.String("address", srv.Addr()))
		g.Go(func() error { return srv.Serve(gctx) })
	}

	w.mu.Lock()
	w.targets = targets
	w.cancel = cancel
	w.ready = true
	w.mu.Unlock()
	w.checkSettled()

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	err = g.Wait()
	w.logger.Info("watch stopped", logging.String(logging.FieldEventType, "watch_stopped"))
	return err
}

// MetricsAddr returns the bound metrics address once Run has started
// serving, or "".
func (w *Watcher) MetricsAddr() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metricsAddr
}

func (w *Watcher) attach(ctx context.Context) ([]*target, error) {
	var targets []*target
	creationTarget, err := w.attachCreation(ctx)
	if err != nil {
		w.logger.Warn("creation session not restored", logging.Error(err))
	} else if creationTarget != nil {
		targets = append(targets, creationTarget)
	}
	orchTarget, err := w.attachOrchestrator(ctx)
	if err != nil {
		w.logger.Warn("orchestrator session not restored", logging.Error(err))
	} else if orchTarget != nil {
		targets = append(targets, orchTarget)
	}
	for _, id := range dedupe(w.opts.Posts) {
		t, err := w.attachPost(ctx, id)
		if err != nil {
			return targets, err
		}
		targets = append(targets, t)
	}
	for _, id := range dedupe(w.opts.Influencers) {
		t, err := w.attachFeed(ctx, id)
		if err != nil {
			return targets, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// refresh refetches every target after a reconnect. Frames published while
// the stream was down are not replayed.
func (w *Watcher) refresh(ctx context.Context) {
	w.mu.Lock()
	targets := slices.Clone(w.targets)
	w.mu.Unlock()
	for _, t := range targets {
		if t.refresh == nil {
			continue
		}
		if err := t.refresh(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("refresh after reconnect failed",
				logging.String("target", t.name),
				logging.Error(err),
			)
		}
	}
	w.checkSettled()
}

func (w *Watcher) checkSettled() {
	if !w.opts.ExitWhenSettled {
		return
	}
	w.mu.Lock()
	if !w.ready {
		w.mu.Unlock()
		return
	}
	targets := slices.Clone(w.targets)
	cancel := w.cancel
	w.mu.Unlock()
	for _, t := range targets {
		if !t.settled() {
			return
		}
	}
	cancel()
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
