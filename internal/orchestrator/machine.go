package orchestrator

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"
)

const workflowName = "orchestrator"

var ladder = workflow.NewLadder([]Phase{PhaseError},
	PhasePlanning,
	PhasePlanReview,
	PhaseResearch,
	PhaseSelection,
	PhaseGeneration,
	PhaseComplete,
)

// State is the client view of one orchestrator session.
type State struct {
	SessionID    string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	InfluencerID string `json:"influencer_id,omitempty" yaml:"influencer_id,omitempty"`
	Query        string `json:"query,omitempty" yaml:"query,omitempty"`
	PostTypeHint string `json:"post_type_hint,omitempty" yaml:"post_type_hint,omitempty"`

	Phase Phase `json:"phase,omitempty" yaml:"phase,omitempty"`
	// FailedPhase is the phase an error interrupted.
	FailedPhase Phase  `json:"failed_phase,omitempty" yaml:"failed_phase,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
	Message     string `json:"message,omitempty" yaml:"message,omitempty"`
	// Activity is the research agent's latest progress line for this phase.
	Activity string `json:"activity,omitempty" yaml:"activity,omitempty"`

	Plan []PlanItem `json:"plan,omitempty" yaml:"plan,omitempty"`
	// Seq orders local plan edits against server plan payloads.
	Seq           uint64 `json:"-" yaml:"-"`
	PlanSubmitted bool   `json:"plan_submitted,omitempty" yaml:"plan_submitted,omitempty"`

	Progress  Progress                      `json:"progress,omitzero" yaml:"progress,omitempty"`
	Questions []Question                    `json:"questions,omitempty" yaml:"questions,omitempty"`
	Summary   map[string]stream.ResultCount `json:"summary,omitempty" yaml:"summary,omitempty"`
	Results   map[string]Results            `json:"results,omitempty" yaml:"results,omitempty"`

	Selection           Selections `json:"selection,omitzero" yaml:"selection,omitempty"`
	SelectionsSubmitted bool       `json:"selections_submitted,omitempty" yaml:"selections_submitted,omitempty"`

	Post *GeneratedPost `json:"post,omitempty" yaml:"post,omitempty"`

	Attempt   int                `json:"attempt,omitempty" yaml:"attempt,omitempty"`
	Announced workflow.Announced `json:"-" yaml:"-"`
}

// Initial returns the state before any session exists.
func Initial() State {
	return State{}
}

// Idle reports whether no session is loaded.
func (s State) Idle() bool {
	return s.SessionID == ""
}

// Failed reports whether the session stopped on an error.
func (s State) Failed() bool {
	return s.Phase == PhaseError
}

// Settled reports whether the session ended or waits on the user: a plan to
// review, results to select from, or an open question.
func (s State) Settled() bool {
	switch {
	case s.Phase.Terminal():
		return true
	case s.Phase == PhasePlanReview && !s.PlanSubmitted:
		return true
	case s.Phase == PhaseSelection && !s.SelectionsSubmitted:
		return true
	default:
		return len(s.Questions) > 0
	}
}

// Clone returns a deep copy safe to hand to observers.
func (s State) Clone() State {
	plan := make([]PlanItem, len(s.Plan))
	for i, item := range s.Plan {
		plan[i] = item.clone()
	}
	s.Plan = plan
	s.Questions = slices.Clone(s.Questions)
	s.Summary = maps.Clone(s.Summary)
	if s.Results != nil {
		results := make(map[string]Results, len(s.Results))
		for k, v := range s.Results {
			results[k] = Results{WebItems: slices.Clone(v.WebItems), Images: slices.Clone(v.Images)}
		}
		s.Results = results
	}
	s.Selection = s.Selection.clone()
	if s.Post != nil {
		p := *s.Post
		p.SlideURLs = slices.Clone(p.SlideURLs)
		s.Post = &p
	}
	s.Announced = slices.Clone(s.Announced)
	return s
}

// Update is a server report about a session. Nil fields carry no
// information.
type Update struct {
	SessionID string
	Phase     Phase
	Message   string
	Error     string

	InfluencerID string
	Query        string
	PostTypeHint string

	Plan *PlanPayload
	// Live marks pushed updates, which are as new as the local state.
	Live       bool
	Progress   *Progress
	Question   *Question
	Summary    map[string]stream.ResultCount
	Results    map[string]Results
	Selections *Selections
	Post       *GeneratedPost
}

// UpdateFromSession converts a fetched session requested at plan sequence
// basis.
func UpdateFromSession(s Session, basis uint64) Update {
	u := Update{
		SessionID:    s.SessionID,
		Phase:        s.Phase,
		Error:        s.Error,
		InfluencerID: s.InfluencerID,
		Query:        s.Query,
		PostTypeHint: s.PostTypeHint,
		Plan:         &PlanPayload{Basis: basis, Tasks: s.ResearchPlan},
		Results:      s.ResearchResults,
		Selections:   s.UserSelections,
		Post:         s.GeneratedPost,
	}
	if len(s.ResearchPlan) == 0 {
		u.Plan = nil
	}
	return u
}

// PhaseForEvent maps an orch_* event name to the phase it reports.
func PhaseForEvent(name string) (Phase, bool) {
	switch name {
	case stream.OrchPlanning:
		return PhasePlanning, true
	case stream.OrchPlanReady:
		return PhasePlanReview, true
	case stream.OrchResearching, stream.OrchQuestion:
		return PhaseResearch, true
	case stream.OrchResearchReady:
		return PhaseSelection, true
	case stream.OrchGenerating:
		return PhaseGeneration, true
	case stream.OrchPostReady:
		return PhaseComplete, true
	case stream.OrchError:
		return PhaseError, true
	default:
		return "", false
	}
}

// UpdateFromEvent converts an orch_* event. Unknown names report false.
func UpdateFromEvent(ev stream.OrchestratorEvent) (Update, bool) {
	phase, ok := PhaseForEvent(ev.Name())
	if !ok {
		return Update{}, false
	}
	u := Update{
		SessionID: ev.Resource().ID(),
		Phase:     phase,
		Message:   ev.Message,
		Live:      true,
	}
	switch ev.Name() {
	case stream.OrchPlanReady:
		tasks := make([]Task, 0, len(ev.SubTasks))
		for _, st := range ev.SubTasks {
			tasks = append(tasks, Task{ID: st.ID, Name: st.Name, Queries: slices.Clone(st.Queries), Status: TaskPending})
		}
		u.Plan = &PlanPayload{Tasks: tasks}
	case stream.OrchResearching:
		if ev.Total > 0 {
			u.Progress = &Progress{Current: ev.Current, Total: ev.Total}
		}
	case stream.OrchQuestion:
		u.Question = &Question{SubTaskID: ev.SubTaskID, Message: ev.Message, Options: slices.Clone(ev.Options)}
	case stream.OrchResearchReady:
		u.Summary = maps.Clone(ev.ResultsSummary)
	case stream.OrchPostReady:
		u.Post = &GeneratedPost{
			PostingID:  ev.PostID,
			SlideCount: ev.SlideCount,
			GridLayout: ev.GridLayout,
			SlideURLs:  slices.Clone(ev.SlideURLs),
			Caption:    ev.Caption,
		}
	case stream.OrchError:
		u.Error = ev.Message
	}
	return u, true
}

// Apply folds u into s and returns the one-time notices it earned.
//
// Updates for another session are ignored, as are phases behind the furthest
// one seen. A repeat of the current phase still merges its payload. An error
// is admitted from any phase and holds until Rewind.
func Apply(s State, u Update) (State, []workflow.Notice) {
	if u.SessionID != "" && s.SessionID != "" && u.SessionID != s.SessionID {
		return s, nil
	}
	if u.Phase == "" {
		return s, nil
	}
	if s.SessionID == "" {
		s.SessionID = u.SessionID
	}
	admitted := ladder.Admit(s.Phase, u.Phase)
	if !admitted && (u.Phase != s.Phase || s.Failed()) {
		return s, nil
	}

	prev := s.Phase
	s = merge(s, u)

	var notices []workflow.Notice
	resource := string(stream.OrchestratorResource(s.SessionID))
	if u.Question != nil {
		notices = s.announce(notices, "question/"+u.Question.SubTaskID+"/"+strconv.Itoa(s.Attempt), notifications.EventOrchestratorQuestion, notifications.Payload{
			"message":     u.Question.Message,
			"sub_task_id": u.Question.SubTaskID,
			"resource":    resource,
		})
	}
	if u.Progress != nil {
		notices = s.announce(notices, fmt.Sprintf("research/%d/%d/%d", s.Attempt, u.Progress.Current, u.Progress.Total), notifications.EventResearchProgress, notifications.Payload{
			"message":  u.Message,
			"resource": resource,
		})
	}
	if !admitted {
		return s, notices
	}

	s.Phase = u.Phase
	s.Activity = ""
	attempt := "/" + strconv.Itoa(s.Attempt)
	switch u.Phase {
	case PhaseError:
		s.FailedPhase = prev
		if s.FailedPhase == "" {
			s.FailedPhase = inferPhase(s)
		}
		s.Error = workflow.FailureMessage(u.Error, u.Message)
		notices = s.announce(notices, "error"+attempt, notifications.EventWorkflowFailed, notifications.Payload{
			"workflow": workflowName,
			"error":    s.Error,
			"resource": resource,
		})
	case PhasePlanReview:
		notices = s.announce(notices, "plan_ready"+attempt, notifications.EventPlanReady, notifications.Payload{
			"message":  u.Message,
			"resource": resource,
		})
	case PhaseResearch:
		s.PlanSubmitted = true
	case PhaseSelection:
		s.PlanSubmitted = true
		notices = s.announce(notices, "research_ready"+attempt, notifications.EventResearchReady, notifications.Payload{
			"message":  u.Message,
			"resource": resource,
		})
	case PhaseGeneration:
		s.SelectionsSubmitted = true
	case PhaseComplete:
		payload := notifications.Payload{"message": u.Message, "resource": resource}
		if s.Post != nil {
			payload["post_id"] = s.Post.PostingID
		}
		notices = s.announce(notices, "post_ready"+attempt, notifications.EventGeneratedPostReady, payload)
	}
	return s, notices
}

// inferPhase guesses where a session restored in the error phase stopped,
// from the inputs it had collected.
func inferPhase(s State) Phase {
	switch {
	case !s.Selection.Empty():
		return PhaseGeneration
	case len(s.Results) > 0 || len(s.Plan) > 0:
		return PhaseResearch
	default:
		return PhasePlanning
	}
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
	if u.Message != "" {
		s.Message = u.Message
	}
	if u.InfluencerID != "" {
		s.InfluencerID = u.InfluencerID
	}
	if u.Query != "" {
		s.Query = u.Query
	}
	if u.PostTypeHint != "" {
		s.PostTypeHint = u.PostTypeHint
	}
	if u.Plan != nil {
		payload := *u.Plan
		if u.Live {
			payload.Basis = s.Seq
		}
		s.Plan = MergePlan(s.Plan, payload)
		s.Seq++
	}
	if u.Progress != nil {
		s.Progress = *u.Progress
	}
	if u.Question != nil {
		s.Questions = slices.DeleteFunc(s.Questions, func(q Question) bool { return q.SubTaskID == u.Question.SubTaskID })
		s.Questions = append(s.Questions, *u.Question)
	}
	if u.Summary != nil {
		s.Summary = maps.Clone(u.Summary)
	}
	if u.Results != nil {
		s.Results = make(map[string]Results, len(u.Results))
		for k, v := range u.Results {
			s.Results[k] = Results{WebItems: slices.Clone(v.WebItems), Images: slices.Clone(v.Images)}
		}
		s.Selection = pruneSelection(s.Selection, s.Results)
	}
	if u.Selections != nil && s.Selection.Empty() {
		s.Selection = u.Selections.clone()
	}
	if u.Post != nil {
		p := *u.Post
		p.SlideURLs = slices.Clone(p.SlideURLs)
		if p.PostingID == "" && s.Post != nil {
			p.PostingID = s.Post.PostingID
		}
		s.Post = &p
	}
	return s
}

// Begin resets s for a session the client just created.
func Begin(s State, sessionID, influencerID, query, hint string) State {
	next := Initial()
	next.Attempt = s.Attempt
	next.SessionID = sessionID
	next.InfluencerID = influencerID
	next.Query = query
	next.PostTypeHint = hint
	next.Phase = PhasePlanning
	return next
}

func (s State) editable() error {
	if s.Phase != PhasePlanReview || s.PlanSubmitted {
		return fmt.Errorf("%w: the plan can only be edited while under review", ErrWrongPhase)
	}
	return nil
}

func (s State) indexOf(id string) int {
	return slices.IndexFunc(s.Plan, func(item PlanItem) bool { return item.ID == id && !item.Removed })
}

// EditTask stores a local edit of a task.
func EditTask(s State, id, name string, queries []string) (State, error) {
	if err := s.editable(); err != nil {
		return s, err
	}
	idx := s.indexOf(id)
	if idx < 0 {
		return s, ErrUnknownTask
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return s, fmt.Errorf("task name is required")
	}
	s = s.Clone()
	s.Seq++
	item := &s.Plan[idx]
	if item.Local {
		item.Name = name
		item.Queries = cleanQueries(queries)
		item.EditSeq = s.Seq
		return s, nil
	}
	draft := Draft{Name: name, Queries: cleanQueries(queries)}
	if draftMatches(draft, item.Task) {
		item.Draft = nil
	} else {
		item.Draft = &draft
	}
	item.EditSeq = s.Seq
	return s, nil
}

// AddTask appends a locally created task.
func AddTask(s State, id, name string, queries []string) (State, error) {
	if err := s.editable(); err != nil {
		return s, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return s, fmt.Errorf("task name is required")
	}
	s = s.Clone()
	s.Seq++
	s.Plan = append(s.Plan, PlanItem{
		Task:    Task{ID: id, Name: name, Queries: cleanQueries(queries), Status: TaskPending},
		Local:   true,
		EditSeq: s.Seq,
	})
	return s, nil
}

// RemoveTask drops a task from the plan locally.
func RemoveTask(s State, id string) (State, error) {
	if err := s.editable(); err != nil {
		return s, err
	}
	idx := s.indexOf(id)
	if idx < 0 {
		return s, ErrUnknownTask
	}
	s = s.Clone()
	s.Seq++
	if s.Plan[idx].Local {
		s.Plan = slices.Delete(s.Plan, idx, idx+1)
		return s, nil
	}
	s.Plan[idx].Removed = true
	s.Plan[idx].EditSeq = s.Seq
	return s, nil
}

// PlanAccepted records that the server took tasks as the plan.
func PlanAccepted(s State, tasks []Task) State {
	s = s.Clone()
	s.Seq++
	plan := make([]PlanItem, 0, len(tasks))
	for _, t := range tasks {
		t = t.clone()
		t.Status = TaskPending
		t.Error = ""
		plan = append(plan, PlanItem{Task: t})
	}
	s.Plan = plan
	s.PlanSubmitted = true
	s.Questions = nil
	s.Progress = Progress{}
	return s
}

// ToggleSelection adds or removes a research result from the selection.
func ToggleSelection(s State, kind ItemKind, id string) (State, error) {
	if s.Phase != PhaseSelection || s.SelectionsSubmitted {
		return s, fmt.Errorf("%w: results can only be selected after research", ErrWrongPhase)
	}
	if !hasItem(s.Results, kind, id) {
		return s, ErrUnknownItem
	}
	s = s.Clone()
	switch kind {
	case ItemWeb:
		s.Selection.WebItemIDs = toggle(s.Selection.WebItemIDs, id)
	case ItemImage:
		s.Selection.ImageIDs = toggle(s.Selection.ImageIDs, id)
	}
	return s, nil
}

// SelectionsAccepted records that generation was requested.
func SelectionsAccepted(s State) State {
	s.SelectionsSubmitted = true
	return s
}

// Rewind clears an error so a retry can re-enter the flow. It returns the
// phase the retry should restart.
func Rewind(s State) (State, Phase, error) {
	if !s.Failed() {
		return s, "", fmt.Errorf("%w: only a failed session can be retried", ErrWrongPhase)
	}
	target := PhasePlanning
	switch s.FailedPhase {
	case PhaseResearch, PhaseSelection:
		if len(EffectivePlan(s.Plan)) > 0 {
			target = PhasePlanReview
		}
	case PhaseGeneration, PhaseComplete:
		if !s.Selection.Empty() {
			target = PhaseSelection
		} else if len(EffectivePlan(s.Plan)) > 0 {
			target = PhasePlanReview
		}
	}
	s = s.Clone()
	s.Attempt++
	s.Phase = target
	s.FailedPhase = ""
	s.Error = ""
	s.Questions = nil
	s.Progress = Progress{}
	switch target {
	case PhasePlanReview:
		s.PlanSubmitted = false
		s.SelectionsSubmitted = false
	case PhaseSelection:
		s.SelectionsSubmitted = false
	}
	return s, target, nil
}

// ResolveQuestion removes the pending question for a sub-task.
func ResolveQuestion(s State, subTaskID string) State {
	s = s.Clone()
	s.Questions = slices.DeleteFunc(s.Questions, func(q Question) bool { return q.SubTaskID == subTaskID })
	return s
}

func hasItem(results map[string]Results, kind ItemKind, id string) bool {
	for _, r := range results {
		switch kind {
		case ItemWeb:
			if slices.ContainsFunc(r.WebItems, func(w WebItem) bool { return w.ID == id }) {
				return true
			}
		case ItemImage:
			if slices.ContainsFunc(r.Images, func(i ImageItem) bool { return i.ID == id }) {
				return true
			}
		}
	}
	return false
}

func toggle(ids []string, id string) []string {
	if idx := slices.Index(ids, id); idx >= 0 {
		return slices.Delete(ids, idx, idx+1)
	}
	ids = append(ids, id)
	slices.Sort(ids)
	return ids
}

func pruneSelection(sel Selections, results map[string]Results) Selections {
	missing := func(kind ItemKind) func(string) bool {
		return func(id string) bool { return !hasItem(results, kind, id) }
	}
	return Selections{
		WebItemIDs: slices.DeleteFunc(slices.Clone(sel.WebItemIDs), missing(ItemWeb)),
		ImageIDs:   slices.DeleteFunc(slices.Clone(sel.ImageIDs), missing(ItemImage)),
	}
}

// ApplyAgent records research-agent progress pushed on agent:<id>. Events for
// another session, empty messages, and events after a terminal phase are
// ignored.
func ApplyAgent(s State, ev stream.AgentEvent) State {
	if s.SessionID == "" || ev.Resource().ID() != s.SessionID || s.Phase.Terminal() {
		return s
	}
	if ev.Message == "" {
		return s
	}
	s.Activity = ev.Message
	return s
}
