package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/apiclient"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/credentials"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/logging"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/metrics"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"
)

const refreshTimeout = 30 * time.Second

// Deps wires a Flow.
type Deps struct {
	API      *API
	Stream   workflow.Subscriber
	Sessions workflow.SessionStore
	Notifier notifications.Service
	Logger   *slog.Logger
	Metrics  *metrics.Registry
	// NewID generates session and task ids. Defaults to uuid.NewString.
	NewID func() string
}

// Flow runs one orchestrator session at a time. It is safe for concurrent
// use; stream events arrive on the manager's goroutine.
type Flow struct {
	api      *API
	sessions workflow.SessionStore
	notifier notifications.Service
	logger   *slog.Logger
	metrics  *metrics.Registry
	newID    func() string

	mu    sync.Mutex
	state State

	follow    *workflow.Subscription
	agent     *workflow.Subscription
	observers workflow.Observers[State]
	refreshes sync.WaitGroup
}

// NewFlow returns an idle flow.
func NewFlow(deps Deps) (*Flow, error) {
	if deps.API == nil {
		return nil, errors.New("orchestrator flow requires an API")
	}
	if deps.Stream == nil {
		return nil, errors.New("orchestrator flow requires a stream subscriber")
	}
	if deps.Sessions == nil {
		return nil, errors.New("orchestrator flow requires a session store")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.Noop()
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Flow{
		api:      deps.API,
		sessions: deps.Sessions,
		notifier: notifier,
		logger:   logging.NewComponentLogger(deps.Logger, workflowName),
		metrics:  deps.Metrics,
		newID:    newID,
		state:    Initial(),
		follow:   workflow.NewSubscription(deps.Stream),
		agent:    workflow.NewSubscription(deps.Stream),
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

// Start begins a session for an influencer. The session id is generated
// here and subscribed before the request so no planning event is missed.
func (f *Flow) Start(ctx context.Context, influencerID, query, hint string) error {
	influencerID = strings.TrimSpace(influencerID)
	query = strings.TrimSpace(query)
	if influencerID == "" || query == "" {
		return f.report(ctx, ErrMissingInput)
	}
	f.mu.Lock()
	busy := !f.state.Idle() && !f.state.Phase.Terminal()
	f.mu.Unlock()
	if busy {
		return f.report(ctx, ErrSessionInProgress)
	}

	id := f.newID()
	f.update(ctx, func(s State) (State, []workflow.Notice) {
		return Begin(s, id, influencerID, query, strings.TrimSpace(hint)), nil
	})
	if err := f.launch(ctx, id); err != nil {
		f.unfollowSession(id)
		_ = f.sessions.ClearSession(ctx, credentials.WorkflowOrchestrator)
		f.update(ctx, func(s State) (State, []workflow.Notice) {
			if s.SessionID != id {
				return s, nil
			}
			return Initial(), nil
		})
		return f.report(ctx, err)
	}
	f.logger.Info("orchestrator started",
		logging.Resource(string(stream.OrchestratorResource(id))),
		logging.String("influencer_id", influencerID),
	)
	return nil
}

// launch subscribes, persists, and posts the start request for the current
// session inputs.
func (f *Flow) launch(ctx context.Context, id string) error {
	f.mu.Lock()
	req := StartRequest{
		InfluencerID: f.state.InfluencerID,
		Query:        f.state.Query,
		PostTypeHint: f.state.PostTypeHint,
		SessionID:    id,
	}
	f.mu.Unlock()

	f.followSession(id)
	if err := f.sessions.SetSession(ctx, credentials.WorkflowOrchestrator, id); err != nil {
		f.logger.Warn("persist orchestrator session failed", logging.Error(err))
	}
	_, err := f.api.Start(ctx, req)
	return err
}

// Restore rejoins the persisted session, fetching it once before deciding
// whether to subscribe. It reports whether a session was found.
func (f *Flow) Restore(ctx context.Context) (bool, error) {
	id, ok, err := f.sessions.Session(ctx, credentials.WorkflowOrchestrator)
	if err != nil {
		return false, fmt.Errorf("load orchestrator session: %w", err)
	}
	if !ok {
		return false, nil
	}
	session, err := f.api.Get(ctx, id)
	if errors.Is(err, apiclient.ErrNotFound) {
		f.logger.Info("persisted orchestrator session no longer exists", logging.Resource(string(stream.OrchestratorResource(id))))
		_ = f.sessions.ClearSession(ctx, credentials.WorkflowOrchestrator)
		return false, nil
	}
	if err != nil {
		return false, f.report(ctx, err)
	}
	if session.SessionID == "" {
		session.SessionID = id
	}

	f.update(ctx, func(s State) (State, []workflow.Notice) {
		next := Initial()
		next.Attempt = s.Attempt
		next.SessionID = session.SessionID
		return Apply(next, UpdateFromSession(session, next.Seq))
	})
	f.settle(ctx, session.SessionID, session.Phase)
	if !session.Phase.Terminal() {
		f.followSession(session.SessionID)
	}
	f.logger.Info("orchestrator session restored",
		logging.Resource(string(stream.OrchestratorResource(session.SessionID))),
		logging.String("phase", string(session.Phase)),
	)
	return true, nil
}

// Refresh refetches the session. The payload is merged against the plan
// sequence at request time, so edits made while it was in flight survive.
func (f *Flow) Refresh(ctx context.Context) error {
	f.mu.Lock()
	id, basis := f.state.SessionID, f.state.Seq
	f.mu.Unlock()
	if id == "" {
		return ErrNoSession
	}
	session, err := f.api.Get(ctx, id)
	if err != nil {
		return f.report(ctx, err)
	}
	if f.applyIfCurrent(ctx, id, UpdateFromSession(session, basis)) {
		f.settle(ctx, id, session.Phase)
	}
	return nil
}

// EditTask changes a task locally.
func (f *Flow) EditTask(id, name string, queries []string) error {
	return f.local(func(s State) (State, error) { return EditTask(s, id, name, queries) })
}

// AddTask appends a local task and returns its id.
func (f *Flow) AddTask(name string, queries []string) (string, error) {
	id := f.newID()
	return id, f.local(func(s State) (State, error) { return AddTask(s, id, name, queries) })
}

// RemoveTask deletes a task locally.
func (f *Flow) RemoveTask(id string) error {
	return f.local(func(s State) (State, error) { return RemoveTask(s, id) })
}

// ToggleSelection adds or removes a research result from the selection.
func (f *Flow) ToggleSelection(kind ItemKind, id string) error {
	return f.local(func(s State) (State, error) { return ToggleSelection(s, kind, id) })
}

// SubmitPlan sends the edited plan and starts research.
func (f *Flow) SubmitPlan(ctx context.Context) error {
	f.mu.Lock()
	state := f.state.Clone()
	f.mu.Unlock()
	if state.Idle() {
		return f.report(ctx, ErrNoSession)
	}
	if err := state.editable(); err != nil {
		return f.report(ctx, err)
	}
	tasks := EffectivePlan(state.Plan)
	if len(tasks) == 0 {
		return f.report(ctx, ErrEmptyPlan)
	}
	if err := f.api.SubmitPlan(ctx, state.SessionID, tasks); err != nil {
		return f.report(ctx, err)
	}
	f.update(ctx, func(s State) (State, []workflow.Notice) {
		if s.SessionID != state.SessionID {
			return s, nil
		}
		return PlanAccepted(s, tasks), nil
	})
	return nil
}

// SubmitSelections sends the curated results and starts generation.
func (f *Flow) SubmitSelections(ctx context.Context) error {
	f.mu.Lock()
	state := f.state.Clone()
	f.mu.Unlock()
	if state.Idle() {
		return f.report(ctx, ErrNoSession)
	}
	if state.Phase != PhaseSelection || state.SelectionsSubmitted {
		return f.report(ctx, fmt.Errorf("%w: nothing to submit", ErrWrongPhase))
	}
	if state.Selection.Empty() {
		return f.report(ctx, ErrNoSelection)
	}
	if err := f.api.SubmitSelections(ctx, state.SessionID, state.Selection); err != nil {
		return f.report(ctx, err)
	}
	f.update(ctx, func(s State) (State, []workflow.Notice) {
		if s.SessionID != state.SessionID {
			return s, nil
		}
		return SelectionsAccepted(s), nil
	})
	return nil
}

// RetrySubTask reruns research for a weak sub-task and reloads the results.
func (f *Flow) RetrySubTask(ctx context.Context, subTaskID, customQuery string) (RetryResult, error) {
	f.mu.Lock()
	state := f.state.Clone()
	f.mu.Unlock()
	if state.Idle() {
		return RetryResult{}, f.report(ctx, ErrNoSession)
	}
	if state.Phase != PhaseResearch && state.Phase != PhaseSelection {
		return RetryResult{}, f.report(ctx, fmt.Errorf("%w: sub-tasks can be retried only during research", ErrWrongPhase))
	}
	result, err := f.api.RetrySubTask(ctx, state.SessionID, subTaskID, strings.TrimSpace(customQuery))
	if err != nil {
		return RetryResult{}, f.report(ctx, err)
	}
	f.update(ctx, func(s State) (State, []workflow.Notice) {
		if s.SessionID != state.SessionID {
			return s, nil
		}
		return ResolveQuestion(s, subTaskID), nil
	})
	if err := f.Refresh(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// Retry re-enters a failed session at the earliest phase whose inputs are
// still known.
func (f *Flow) Retry(ctx context.Context) error {
	var (
		target Phase
		err    error
	)
	f.update(ctx, func(s State) (State, []workflow.Notice) {
		var next State
		next, target, err = Rewind(s)
		return next, nil
	})
	if err != nil {
		return f.report(ctx, err)
	}
	id := f.sessionID()
	f.logger.Info("orchestrator retry",
		logging.Resource(string(stream.OrchestratorResource(id))),
		logging.String("phase", string(target)),
	)
	switch target {
	case PhasePlanReview:
		f.followSession(id)
		return f.SubmitPlan(ctx)
	case PhaseSelection:
		f.followSession(id)
		return f.SubmitSelections(ctx)
	default:
		f.update(ctx, func(s State) (State, []workflow.Notice) {
			return Begin(s, id, s.InfluencerID, s.Query, s.PostTypeHint), nil
		})
		if err := f.launch(ctx, id); err != nil {
			return f.report(ctx, err)
		}
		return nil
	}
}

// Reset abandons the session: server deletion, then the persisted id, then
// the subscription, then the local state.
func (f *Flow) Reset(ctx context.Context) error {
	id := f.sessionID()
	if id != "" {
		if err := f.api.Delete(ctx, id); err != nil {
			return f.report(ctx, err)
		}
	}
	if err := f.sessions.ClearSession(ctx, credentials.WorkflowOrchestrator); err != nil {
		return fmt.Errorf("clear orchestrator session: %w", err)
	}
	f.unfollowSession("")
	f.update(ctx, func(s State) (State, []workflow.Notice) {
		next := Initial()
		next.Attempt = s.Attempt
		return next, nil
	})
	if id != "" {
		f.logger.Info("orchestrator session reset", logging.Resource(string(stream.OrchestratorResource(id))))
	}
	return nil
}

// Close drops the subscription and waits for background refreshes. The
// persisted session id is kept.
func (f *Flow) Close() {
	f.unfollowSession("")
	f.refreshes.Wait()
}

// followSession subscribes to the session's events and its research agent.
func (f *Flow) followSession(id string) {
	f.follow.Follow(stream.OrchestratorResource(id), f.handle)
	f.agent.Follow(stream.AgentResource(id), f.handleAgent)
}

// unfollowSession drops both subscriptions while they belong to id. An empty
// id drops them unconditionally.
func (f *Flow) unfollowSession(id string) {
	if id == "" {
		f.follow.Stop()
		f.agent.Stop()
		return
	}
	f.follow.StopIf(stream.OrchestratorResource(id))
	f.agent.StopIf(stream.AgentResource(id))
}

func (f *Flow) handleAgent(ev stream.Event) {
	ae, ok := ev.(stream.AgentEvent)
	if !ok {
		f.logger.Debug("agent event ignored", logging.String("event", ev.Name()))
		return
	}
	f.update(context.Background(), func(s State) (State, []workflow.Notice) {
		return ApplyAgent(s, ae), nil
	})
}

func (f *Flow) handle(ev stream.Event) {
	oe, ok := ev.(stream.OrchestratorEvent)
	if !ok {
		f.logger.Debug("orchestrator event ignored", logging.String("event", ev.Name()))
		return
	}
	u, ok := UpdateFromEvent(oe)
	if !ok {
		f.logger.Debug("unknown orchestrator event", logging.String("event", oe.Name()))
		return
	}
	ctx := context.Background()
	before := f.State().Phase
	if !f.applyIfCurrent(ctx, u.SessionID, u) {
		return
	}
	after := f.State().Phase
	if after == PhaseSelection && before != PhaseSelection {
		// research_ready only carries counts; the items come from the session.
		f.refreshes.Add(1)
		go func() {
			defer f.refreshes.Done()
			rctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			if err := f.Refresh(rctx); err != nil {
				f.logger.Warn("load research results failed", logging.Error(err))
			}
		}()
	}
	f.settle(ctx, u.SessionID, after)
}

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

// settle releases a finished session. Completion clears the persisted id;
// an error keeps it for retry or reset.
func (f *Flow) settle(ctx context.Context, id string, phase Phase) {
	if !phase.Terminal() {
		return
	}
	f.mu.Lock()
	current := f.state.SessionID == id && f.state.Phase == phase
	f.mu.Unlock()
	if !current {
		return
	}
	if phase == PhaseComplete {
		if err := f.sessions.ClearSession(ctx, credentials.WorkflowOrchestrator); err != nil {
			f.logger.Warn("clear orchestrator session failed", logging.Error(err))
		}
	}
	f.unfollowSession(id)
}

func (f *Flow) local(fn func(State) (State, error)) error {
	var err error
	f.update(context.Background(), func(s State) (State, []workflow.Notice) {
		next, ferr := fn(s)
		if ferr != nil {
			err = ferr
			return s, nil
		}
		return next, nil
	})
	return err
}

func (f *Flow) update(ctx context.Context, fn func(State) (State, []workflow.Notice)) {
	f.mu.Lock()
	prev := f.state
	next, notices := fn(prev)
	f.state = next
	snapshot := next.Clone()
	f.mu.Unlock()

	if prev.Phase != next.Phase && next.Phase != "" {
		f.metrics.ObserveTransition(workflowName, string(next.Phase))
		f.logger.Info("orchestrator phase changed",
			logging.Resource(string(stream.OrchestratorResource(next.SessionID))),
			logging.Workflow(workflowName),
			logging.String("from", string(prev.Phase)),
			logging.String("to", string(next.Phase)),
		)
	}
	workflow.Publish(ctx, f.notifier, notices)
	f.observers.Emit(snapshot)
}

func (f *Flow) report(ctx context.Context, err error) error {
	message := workflow.UserMessage(err)
	f.mu.Lock()
	f.state.Error = message
	resource := ""
	if f.state.SessionID != "" {
		resource = string(stream.OrchestratorResource(f.state.SessionID))
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
