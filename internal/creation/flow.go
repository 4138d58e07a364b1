package creation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/apiclient"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/credentials"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/logging"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/metrics"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"
)

// Deps wires a Flow.
type Deps struct {
	API      *API
	Stream   workflow.Subscriber
	Sessions workflow.SessionStore
	Notifier notifications.Service
	Logger   *slog.Logger
	Metrics  *metrics.Registry
}

// Flow runs one creation session at a time. It is safe for concurrent use;
// stream events arrive on the manager's goroutine.
type Flow struct {
	api      *API
	sessions workflow.SessionStore
	notifier notifications.Service
	logger   *slog.Logger
	metrics  *metrics.Registry

	mu    sync.Mutex
	state State

	follow *workflow.Subscription

	observers workflow.Observers[State]
}

// NewFlow returns a flow at the input step.
func NewFlow(deps Deps) (*Flow, error) {
	if deps.API == nil {
		return nil, errors.New("creation flow requires an API")
	}
	if deps.Stream == nil {
		return nil, errors.New("creation flow requires a stream subscriber")
	}
	if deps.Sessions == nil {
		return nil, errors.New("creation flow requires a session store")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.Noop()
	}
	return &Flow{
		api:      deps.API,
		sessions: deps.Sessions,
		follow:   workflow.NewSubscription(deps.Stream),
		notifier: notifier,
		logger:   logging.NewComponentLogger(deps.Logger, workflowName),
		metrics:  deps.Metrics,
		state:    Initial(),
	}, nil
}

// State returns a snapshot of the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}

// OnChange registers fn for every state change and returns its removal.
func (f *Flow) OnChange(fn func(State)) func() {
	return f.observers.Add(fn)
}

// Start begins a new session from a location and a free-text prompt.
func (f *Flow) Start(ctx context.Context, location, prompt string) error {
	location = strings.TrimSpace(location)
	prompt = strings.TrimSpace(prompt)
	if location == "" || prompt == "" {
		return f.report(ctx, ErrMissingInput)
	}
	f.mu.Lock()
	busy := f.state.SessionID != "" && f.state.Status.Active() && !f.state.Failed
	f.mu.Unlock()
	if busy {
		return f.report(ctx, ErrSessionInProgress)
	}

	session, err := f.api.Start(ctx, location, prompt)
	if err != nil {
		return f.report(ctx, err)
	}
	if err := f.sessions.SetSession(ctx, credentials.WorkflowCreation, session.ID); err != nil {
		f.logger.Warn("persist creation session failed",
			logging.Resource(string(stream.SessionResource(session.ID))),
			logging.Error(err),
		)
	}
	f.update(ctx, func(s State) (State, []workflow.Notice) {
		return Begin(s, session)
	})
	f.follow.Follow(stream.SessionResource(session.ID), f.handle)
	f.logger.Info("creation started",
		logging.Resource(string(stream.SessionResource(session.ID))),
		logging.String("location", location),
	)
	return nil
}

// Restore rejoins a session after a restart. It fetches server state once
// and subscribes only when the session can still change. It reports whether a
// session was found.
func (f *Flow) Restore(ctx context.Context) (bool, error) {
	id, ok, err := f.sessions.Session(ctx, credentials.WorkflowCreation)
	if err != nil {
		return false, fmt.Errorf("load creation session: %w", err)
	}

	var session Session
	if ok {
		session, err = f.api.Get(ctx, id)
		if errors.Is(err, apiclient.ErrNotFound) {
			f.logger.Info("persisted creation session no longer exists", logging.Resource(string(stream.SessionResource(id))))
			_ = f.sessions.ClearSession(ctx, credentials.WorkflowCreation)
			return false, nil
		}
		if err != nil {
			return false, f.report(ctx, err)
		}
	} else {
		var found bool
		session, found, err = f.api.Active(ctx)
		if err != nil {
			return false, f.report(ctx, err)
		}
		if !found {
			return false, nil
		}
		if err := f.sessions.SetSession(ctx, credentials.WorkflowCreation, session.ID); err != nil {
			f.logger.Warn("persist creation session failed", logging.Error(err))
		}
	}

	f.update(ctx, func(s State) (State, []workflow.Notice) {
		next := Initial()
		next.Attempt = s.Attempt
		next.SessionID = session.ID
		return Apply(next, UpdateFromSession(session))
	})
	f.settle(ctx, session.ID, session.Status)
	if !session.Status.Terminal() {
		f.follow.Follow(stream.SessionResource(session.ID), f.handle)
	}
	f.logger.Info("creation session restored",
		logging.Resource(string(stream.SessionResource(session.ID))),
		logging.String("status", string(session.Status)),
	)
	return true, nil
}

// Refresh refetches the current session. The result is dropped when the
// local session changed while the request was in flight.
func (f *Flow) Refresh(ctx context.Context) error {
	id := f.sessionID()
	if id == "" {
		return ErrNoSession
	}
	session, err := f.api.Get(ctx, id)
	if err != nil {
		return f.report(ctx, err)
	}
	f.applyIfCurrent(ctx, id, UpdateFromSession(session))
	return nil
}

// SelectAvatar picks one of the offered avatars and starts persona
// generation.
func (f *Flow) SelectAvatar(ctx context.Context, avatarURL string) error {
	f.mu.Lock()
	_, err := Select(f.state, avatarURL)
	id := f.state.SessionID
	f.mu.Unlock()
	if err != nil {
		return f.report(ctx, err)
	}

	session, err := f.api.SelectAvatar(ctx, id, avatarURL)
	if err != nil {
		return f.report(ctx, err)
	}
	f.update(ctx, func(s State) (State, []workflow.Notice) {
		if s.SessionID != id {
			return s, nil
		}
		s.SelectedAvatar = avatarURL
		return Apply(s, UpdateFromSession(session))
	})
	return nil
}

// Edit changes the review draft locally. Nothing is sent until Confirm.
func (f *Flow) Edit(e Edits) error {
	var err error
	f.update(context.Background(), func(s State) (State, []workflow.Notice) {
		var next State
		next, err = Edit(s, e)
		return next, nil
	})
	return err
}

// Confirm turns the reviewed draft into an influencer.
func (f *Flow) Confirm(ctx context.Context) (Influencer, error) {
	f.mu.Lock()
	state := f.state.Clone()
	f.mu.Unlock()
	if state.SessionID == "" {
		return Influencer{}, f.report(ctx, ErrNoSession)
	}
	if state.Step != StepReview || state.Failed {
		return Influencer{}, f.report(ctx, fmt.Errorf("%w: persona is not ready for review", ErrWrongStep))
	}

	result, err := f.api.Confirm(ctx, state.SessionID, state.PendingEdits())
	if err != nil {
		return Influencer{}, f.report(ctx, err)
	}
	influencer, err := result.Influencer.Influencer()
	if err != nil {
		return Influencer{}, fmt.Errorf("decode influencer: %w", err)
	}
	f.update(ctx, func(s State) (State, []workflow.Notice) {
		return Apply(s, Update{
			SessionID:    state.SessionID,
			Status:       StatusComplete,
			Message:      result.Message,
			InfluencerID: influencer.ID,
		})
	})
	f.settle(ctx, state.SessionID, StatusComplete)
	return influencer, nil
}

// Discard abandons the session: server deletion, then the persisted id,
// then the subscription, then the local state.
func (f *Flow) Discard(ctx context.Context) error {
	id := f.sessionID()
	if id != "" {
		if err := f.api.Delete(ctx, id); err != nil {
			return f.report(ctx, err)
		}
	}
	if err := f.sessions.ClearSession(ctx, credentials.WorkflowCreation); err != nil {
		return fmt.Errorf("clear creation session: %w", err)
	}
	f.follow.Stop()
	f.update(ctx, func(s State) (State, []workflow.Notice) {
		next := Initial()
		next.Attempt = s.Attempt
		return next, nil
	})
	if id != "" {
		f.logger.Info("creation session discarded", logging.Resource(string(stream.SessionResource(id))))
	}
	return nil
}

// Retry starts a new session with the failed session's inputs.
func (f *Flow) Retry(ctx context.Context) error {
	f.mu.Lock()
	state := f.state.Clone()
	f.mu.Unlock()
	if !state.Retryable() {
		return f.report(ctx, fmt.Errorf("%w: only a failed session can be retried", ErrWrongStep))
	}
	if err := f.Discard(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	f.state.Attempt = state.Attempt + 1
	f.mu.Unlock()
	return f.Start(ctx, state.Location, state.Prompt)
}

// Close drops the stream subscription. The persisted session id is kept so
// a later Restore can rejoin.
func (f *Flow) Close() {
	f.follow.Stop()
}

func (f *Flow) handle(ev stream.Event) {
	switch ev := ev.(type) {
	case stream.StatusUpdate:
		u, err := UpdateFromEvent(ev)
		if err != nil {
			logging.WarnWithContext(f.logger, "creation event dropped", "decode_failed", "status update ignored",
				logging.Resource(string(ev.Resource())),
				logging.Error(err),
			)
			return
		}
		ctx := context.Background()
		if f.applyIfCurrent(ctx, u.SessionID, u) {
			f.settle(ctx, u.SessionID, u.Status)
		}
	default:
		f.logger.Debug("creation event ignored", logging.String("event", ev.Name()))
	}
}

// applyIfCurrent applies u only while id is still the local session.
func (f *Flow) applyIfCurrent(ctx context.Context, id string, u Update) bool {
	applied := false
	f.update(ctx, func(s State) (State, []workflow.Notice) {
		if s.SessionID == "" || s.SessionID != id {
			return s, nil
		}
		applied = true
		return Apply(s, u)
	})
	return applied
}

// settle stops following a session that reached a terminal status. A
// completed session also releases its persisted id; a failed one keeps it
// for retry or discard.
func (f *Flow) settle(ctx context.Context, id string, status Status) {
	if !status.Terminal() {
		return
	}
	f.mu.Lock()
	current := f.state.SessionID == id && f.state.Status == status
	f.mu.Unlock()
	if !current {
		return
	}
	if status == StatusComplete {
		if err := f.sessions.ClearSession(ctx, credentials.WorkflowCreation); err != nil {
			f.logger.Warn("clear creation session failed", logging.Error(err))
		}
	}
	f.follow.StopIf(stream.SessionResource(id))
}

func (f *Flow) update(ctx context.Context, fn func(State) (State, []workflow.Notice)) {
	f.mu.Lock()
	prev := f.state
	next, notices := fn(prev)
	f.state = next
	snapshot := next.Clone()
	f.mu.Unlock()

	if prev.Step != next.Step || prev.Failed != next.Failed {
		phase := string(next.Step)
		if next.Failed {
			phase = string(StatusFailed)
		}
		f.metrics.ObserveTransition(workflowName, phase)
		f.logger.Info("creation step changed",
			logging.Resource(string(stream.SessionResource(next.SessionID))),
			logging.Workflow(workflowName),
			logging.String("from", string(prev.Step)),
			logging.String("to", phase),
		)
	}
	workflow.Publish(ctx, f.notifier, notices)
	f.observers.Emit(snapshot)
}

// report surfaces err through the notifier and returns it.
func (f *Flow) report(ctx context.Context, err error) error {
	message := workflow.UserMessage(err)
	f.mu.Lock()
	f.state.Error = message
	resource := ""
	if f.state.SessionID != "" {
		resource = string(stream.SessionResource(f.state.SessionID))
	}
	f.mu.Unlock()
	_ = f.notifier.Publish(ctx, notifications.EventWorkflowFailed, notifications.Payload{
		"workflow": workflowName,
		"error":    message,
		"resource": resource,
	})
	return err
}

func (f *Flow) sessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.SessionID
}
