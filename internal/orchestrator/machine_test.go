package orchestrator

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

func event(t *testing.T, name string, data map[string]any) Update {
	t.Helper()
	ev := testsupport.Event(name, stream.OrchestratorResource("o1"), data)
	u, ok := UpdateFromEvent(ev.(stream.OrchestratorEvent))
	require.True(t, ok)
	return u
}

func planReady(t *testing.T) Update {
	return event(t, stream.OrchPlanReady, map[string]any{
		"message": "Research plan ready for review",
		"sub_tasks": []map[string]any{
			{"id": "t1", "name": "Trends", "queries": []string{"q1"}},
			{"id": "t2", "name": "Gear", "queries": []string{"q2"}},
		},
	})
}

func started() State {
	return Begin(Initial(), "o1", "inf1", "best budget cameras", "")
}

func TestApplyWalksPhases(t *testing.T) {
	s := started()
	var all []workflow.Notice
	steps := []struct {
		u    Update
		want Phase
	}{
		{event(t, stream.OrchPlanning, map[string]any{"message": "Creating research plan..."}), PhasePlanning},
		{planReady(t), PhasePlanReview},
		{event(t, stream.OrchResearching, map[string]any{"message": "Researching: Trends", "current": 1, "total": 2}), PhaseResearch},
		{event(t, stream.OrchResearchReady, map[string]any{"results_summary": map[string]any{"t1": map[string]int{"web_count": 3, "image_count": 2}}}), PhaseSelection},
		{event(t, stream.OrchGenerating, map[string]any{"message": "Analyzing selections..."}), PhaseGeneration},
		{event(t, stream.OrchPostReady, map[string]any{"post_id": "p1", "slide_count": 2, "grid_layout": "1x2", "caption": "c", "slide_urls": []string{"a", "b"}}), PhaseComplete},
	}
	for _, step := range steps {
		var notices []workflow.Notice
		s, notices = Apply(s, step.u)
		all = append(all, notices...)
		assert.Equal(t, step.want, s.Phase)
	}

	require.NotNil(t, s.Post)
	assert.Equal(t, "p1", s.Post.PostingID)
	assert.Equal(t, []string{"a", "b"}, s.Post.SlideURLs)
	assert.Equal(t, 3, s.Summary["t1"].WebCount)
	assert.Equal(t, []string{"t1", "t2"}, ids(s.Plan))

	events := map[notifications.Event]int{}
	for _, n := range all {
		events[n.Event]++
	}
	assert.Equal(t, 1, events[notifications.EventPlanReady])
	assert.Equal(t, 1, events[notifications.EventResearchProgress])
	assert.Equal(t, 1, events[notifications.EventResearchReady])
	assert.Equal(t, 1, events[notifications.EventGeneratedPostReady])
}

func TestApplyIgnoresLateEarlierPhase(t *testing.T) {
	s, _ := Apply(started(), planReady(t))
	s, _ = Apply(s, event(t, stream.OrchResearchReady, map[string]any{}))
	s, notices := Apply(s, planReady(t))
	assert.Equal(t, PhaseSelection, s.Phase)
	assert.Empty(t, notices)
}

func TestApplyDuplicatePlanReadyKeepsDrafts(t *testing.T) {
	s, _ := Apply(started(), planReady(t))
	s, err := EditTask(s, "t1", "Trending now", []string{"q1", " q3 "})
	require.NoError(t, err)

	s, notices := Apply(s, planReady(t))
	assert.Empty(t, notices, "plan_ready is announced once")
	require.NotNil(t, s.Plan[0].Draft)
	assert.Equal(t, "Trending now", s.Plan[0].Effective().Name)
	assert.Equal(t, []string{"q1", "q3"}, s.Plan[0].Effective().Queries)
}

func TestApplyPlanPushDropsEditOfVanishedTask(t *testing.T) {
	s, _ := Apply(started(), planReady(t))
	s, err := EditTask(s, "t1", "Trending now", nil)
	require.NoError(t, err)

	s, _ = Apply(s, event(t, stream.OrchPlanReady, map[string]any{
		"sub_tasks": []map[string]any{{"id": "t2", "name": "Gear", "queries": []string{"q2"}}},
	}))
	assert.Equal(t, []string{"t2"}, ids(s.Plan))
}

func TestApplyStaleFetchKeepsNewerEdit(t *testing.T) {
	s, _ := Apply(started(), planReady(t))
	basis := s.Seq
	s, err := EditTask(s, "t1", "Trending now", nil)
	require.NoError(t, err)

	fetched := Session{
		SessionID:    "o1",
		Phase:        PhasePlanReview,
		ResearchPlan: []Task{{ID: "t2", Name: "Gear", Queries: []string{"q2"}}},
	}
	s, _ = Apply(s, UpdateFromSession(fetched, basis))
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids(s.Plan))
}

func TestEditingRequiresPlanReview(t *testing.T) {
	_, err := EditTask(started(), "t1", "x", nil)
	assert.ErrorIs(t, err, ErrWrongPhase)

	s, _ := Apply(started(), planReady(t))
	_, err = EditTask(s, "nope", "x", nil)
	assert.ErrorIs(t, err, ErrUnknownTask)

	s = PlanAccepted(s, EffectivePlan(s.Plan))
	_, err = AddTask(s, "n1", "x", nil)
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestAddAndRemoveTasks(t *testing.T) {
	s, _ := Apply(started(), planReady(t))
	s, err := AddTask(s, "n1", "Budget picks", []string{"cheap cameras"})
	require.NoError(t, err)
	s, err = RemoveTask(s, "t2")
	require.NoError(t, err)

	plan := EffectivePlan(s.Plan)
	require.Len(t, plan, 2)
	assert.Equal(t, "t1", plan[0].ID)
	assert.Equal(t, "n1", plan[1].ID)

	s, err = RemoveTask(s, "n1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids(s.Plan), "removing a local task deletes it outright")
}

func TestQuestionAnnouncedOncePerSubTask(t *testing.T) {
	s, _ := Apply(started(), planReady(t))
	q := event(t, stream.OrchQuestion, map[string]any{
		"message":     "Found few results for 'Gear'. Provide a broader query or skip?",
		"sub_task_id": "t2",
		"options":     []string{"skip", "retry"},
	})
	s, first := Apply(s, q)
	s, second := Apply(s, q)
	assert.Len(t, first, 1)
	assert.Equal(t, notifications.EventOrchestratorQuestion, first[0].Event)
	assert.Empty(t, second)
	require.Len(t, s.Questions, 1)
	assert.Equal(t, PhaseResearch, s.Phase)

	s = ResolveQuestion(s, "t2")
	assert.Empty(t, s.Questions)
}

func TestToggleSelection(t *testing.T) {
	s, _ := Apply(started(), event(t, stream.OrchResearchReady, map[string]any{}))
	s, _ = Apply(s, UpdateFromSession(Session{
		SessionID: "o1",
		Phase:     PhaseSelection,
		ResearchResults: map[string]Results{
			"t1": {WebItems: []WebItem{{ID: "w1"}, {ID: "w2"}}, Images: []ImageItem{{ID: "i1"}}},
		},
	}, s.Seq))

	s, err := ToggleSelection(s, ItemWeb, "w2")
	require.NoError(t, err)
	s, err = ToggleSelection(s, ItemImage, "i1")
	require.NoError(t, err)
	s, err = ToggleSelection(s, ItemWeb, "w1")
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, s.Selection.WebItemIDs)

	s, err = ToggleSelection(s, ItemWeb, "w2")
	require.NoError(t, err)
	assert.Equal(t, Selections{WebItemIDs: []string{"w1"}, ImageIDs: []string{"i1"}}, s.Selection)

	_, err = ToggleSelection(s, ItemImage, "w1")
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestErrorHaltsAndRewindPicksRestartPhase(t *testing.T) {
	s, _ := Apply(started(), planReady(t))
	s = PlanAccepted(s, EffectivePlan(s.Plan))
	s, _ = Apply(s, event(t, stream.OrchResearching, map[string]any{"message": "Researching..."}))
	s, notices := Apply(s, event(t, stream.OrchError, map[string]any{"message": "Research failed: quota exceeded"}))

	assert.True(t, s.Failed())
	assert.Equal(t, PhaseResearch, s.FailedPhase)
	assert.Equal(t, "Research failed: quota exceeded", s.Error)
	require.Len(t, notices, 1)
	assert.Equal(t, notifications.EventWorkflowFailed, notices[0].Event)

	halted, _ := Apply(s, event(t, stream.OrchResearchReady, map[string]any{}))
	assert.Equal(t, PhaseError, halted.Phase)

	s, target, err := Rewind(s)
	require.NoError(t, err)
	assert.Equal(t, PhasePlanReview, target)
	assert.Equal(t, PhasePlanReview, s.Phase)
	assert.False(t, s.PlanSubmitted)
	assert.Empty(t, s.Error)
	assert.Equal(t, 1, s.Attempt)

	_, _, err = Rewind(s)
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestRestoredErrorInfersFailedPhase(t *testing.T) {
	s, _ := Apply(Initial(), UpdateFromSession(Session{
		SessionID:      "o1",
		Phase:          PhaseError,
		Error:          "Generation failed: no avatar",
		ResearchPlan:   []Task{{ID: "t1", Name: "Trends"}},
		UserSelections: &Selections{WebItemIDs: []string{"w1"}},
	}, 0))
	assert.Equal(t, PhaseGeneration, s.FailedPhase)
	_, target, err := Rewind(s)
	require.NoError(t, err)
	assert.Equal(t, PhaseSelection, target)
}

func TestApplyNeverRegressesPhase(t *testing.T) {
	names := []string{
		stream.OrchPlanning, stream.OrchPlanReady, stream.OrchResearching, stream.OrchQuestion,
		stream.OrchResearchReady, stream.OrchGenerating, stream.OrchPostReady, stream.OrchError,
	}
	rapid.Check(t, func(rt *rapid.T) {
		seq := rapid.SliceOf(rapid.SampledFrom(names)).Draw(rt, "events")
		s := started()
		failed := false
		for _, name := range seq {
			prev := s.Phase
			prevOrd, _ := ladder.Ordinal(prev)
			ev := testsupport.Event(name, stream.OrchestratorResource("o1"), map[string]any{"message": name})
			u, _ := UpdateFromEvent(ev.(stream.OrchestratorEvent))
			s, _ = Apply(s, u)
			if failed && s.Phase != PhaseError {
				rt.Fatalf("left error phase on %s", name)
			}
			if s.Phase == PhaseError {
				failed = true
				continue
			}
			ord, _ := ladder.Ordinal(s.Phase)
			if ord < prevOrd {
				rt.Fatalf("phase regressed from %s to %s", prev, s.Phase)
			}
		}
	})
}

func TestSettledWaitsOnUser(t *testing.T) {
	assert.False(t, State{Phase: PhasePlanning}.Settled())
	assert.True(t, State{Phase: PhasePlanReview}.Settled())
	assert.False(t, State{Phase: PhasePlanReview, PlanSubmitted: true}.Settled())
	assert.False(t, State{Phase: PhaseResearch}.Settled())
	assert.True(t, State{Phase: PhaseResearch, Questions: []Question{{SubTaskID: "t1", Message: "which?"}}}.Settled())
	assert.True(t, State{Phase: PhaseSelection}.Settled())
	assert.False(t, State{Phase: PhaseSelection, SelectionsSubmitted: true}.Settled())
	assert.True(t, State{Phase: PhaseComplete}.Settled())
	assert.True(t, State{Phase: PhaseError}.Settled())
}

func TestApplyAgentTracksCurrentSessionOnly(t *testing.T) {
	s, _ := Apply(Begin(Initial(), "o1", "inf1", "q", ""), planReady(t))
	agent := func(id, message string) stream.AgentEvent {
		return testsupport.Event("agent_status", stream.AgentResource(id), map[string]any{"message": message}).(stream.AgentEvent)
	}

	s = ApplyAgent(s, agent("o1", "Crafting search queries..."))
	assert.Equal(t, "Crafting search queries...", s.Activity)
	s = ApplyAgent(s, agent("o2", "not ours"))
	s = ApplyAgent(s, agent("o1", ""))
	assert.Equal(t, "Crafting search queries...", s.Activity)

	s, _ = Apply(s, event(t, stream.OrchError, map[string]any{"message": "boom"}))
	assert.Empty(t, s.Activity, "a phase change clears agent progress")
	s = ApplyAgent(s, agent("o1", "late"))
	assert.Empty(t, s.Activity)
}
