package orchestrator

import "github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"

var (
	// ErrMissingInput is returned by Start without an influencer or query.
	ErrMissingInput = workflow.NewError("influencer and query are required")
	// ErrWrongPhase is returned for an action the current phase does not allow.
	ErrWrongPhase = workflow.NewError("action not allowed in this phase")
	// ErrUnknownTask is returned for a task id that is not in the plan.
	ErrUnknownTask = workflow.NewError("task is not in the plan")
	// ErrUnknownItem is returned when selecting an id no research produced.
	ErrUnknownItem = workflow.NewError("item is not in the research results")
	// ErrEmptyPlan is returned when submitting a plan without tasks.
	ErrEmptyPlan = workflow.NewError("research plan has no tasks")
	// ErrNoSelection is returned when submitting nothing for generation.
	ErrNoSelection = workflow.NewError("select at least one item")
	// ErrNoSession is returned when an action needs a session and none exists.
	ErrNoSession = workflow.NewError("no orchestrator session in progress")
	// ErrSessionInProgress is returned by Start while another session runs.
	ErrSessionInProgress = workflow.NewError("an orchestrator session is already in progress")
)
