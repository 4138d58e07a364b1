package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/orchestrator"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/studio"
)

var errNoOrchestrator = errors.New("no orchestrator session found; start one with `aura orchestrator start`")

func newOrchestratorCommand(ctx *commandContext) *cobra.Command {
	orchCmd := &cobra.Command{
		Use:     "orchestrator",
		Aliases: []string{"orch", "research"},
		Short:   "Plan research, pick results, and generate a post",
	}
	orchCmd.AddCommand(newOrchestratorStartCommand(ctx))
	orchCmd.AddCommand(newOrchestratorStatusCommand(ctx))
	orchCmd.AddCommand(newOrchestratorSubmitPlanCommand(ctx))
	orchCmd.AddCommand(newOrchestratorSelectCommand(ctx))
	orchCmd.AddCommand(newOrchestratorRetrySubTaskCommand(ctx))
	orchCmd.AddCommand(newOrchestratorRetryCommand(ctx))
	orchCmd.AddCommand(newOrchestratorResetCommand(ctx))
	return orchCmd
}

func withOrchestrator(cmd *cobra.Command, ctx *commandContext, required bool, fn func(context.Context, *orchestrator.Flow) error) error {
	return ctx.withRuntime(cmd, func(runCtx context.Context, rt *studio.Runtime) error {
		flow, err := rt.Orchestrator()
		if err != nil {
			return err
		}
		defer flow.Close()
		restored, err := flow.Restore(runCtx)
		if err != nil {
			return err
		}
		if required && !restored {
			return errNoOrchestrator
		}
		return fn(runCtx, flow)
	})
}

func newOrchestratorStartCommand(ctx *commandContext) *cobra.Command {
	var influencerID, query, hint string
	var wait waitOptions

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a research session for an influencer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd, ctx, false, func(runCtx context.Context, flow *orchestrator.Flow) error {
				if err := flow.Start(runCtx, influencerID, query, hint); err != nil {
					return err
				}
				return finishOrchestrator(cmd, ctx, runCtx, flow, wait)
			})
		},
	}
	cmd.Flags().StringVarP(&influencerID, "influencer", "i", "", "Influencer id")
	cmd.Flags().StringVarP(&query, "query", "q", "", "What the post should be about")
	cmd.Flags().StringVar(&hint, "hint", "", "Post type hint, such as carousel or single")
	_ = cmd.MarkFlagRequired("influencer")
	_ = cmd.MarkFlagRequired("query")
	wait.register(cmd)
	return cmd
}

func newOrchestratorStatusCommand(ctx *commandContext) *cobra.Command {
	var wait waitOptions
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current research session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd, ctx, true, func(runCtx context.Context, flow *orchestrator.Flow) error {
				return finishOrchestrator(cmd, ctx, runCtx, flow, wait)
			})
		},
	}
	wait.register(cmd)
	return cmd
}

func newOrchestratorSubmitPlanCommand(ctx *commandContext) *cobra.Command {
	var edits, adds, removes []string
	var wait waitOptions

	cmd := &cobra.Command{
		Use:   "submit-plan",
		Short: "Edit the proposed research plan and start research",
		Long: "Edit the proposed research plan and start research.\n\n" +
			"Task specs use NAME[:QUERY;QUERY...]. --edit takes ID=SPEC and keeps the\n" +
			"existing queries when none are given.",
		Example: "  aura orchestrator submit-plan --remove t2 --add 'Local events:events this weekend;festivals'",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd, ctx, true, func(runCtx context.Context, flow *orchestrator.Flow) error {
				for _, id := range removes {
					if err := flow.RemoveTask(strings.TrimSpace(id)); err != nil {
						return err
					}
				}
				for _, spec := range edits {
					id, rest, ok := strings.Cut(spec, "=")
					if !ok {
						return fmt.Errorf("invalid --edit %q: want ID=NAME[:QUERY;...]", spec)
					}
					id = strings.TrimSpace(id)
					name, queries := parseTaskSpec(rest)
					if len(queries) == 0 {
						queries = currentQueries(flow.State(), id)
					}
					if err := flow.EditTask(id, name, queries); err != nil {
						return err
					}
				}
				for _, spec := range adds {
					name, queries := parseTaskSpec(spec)
					if _, err := flow.AddTask(name, queries); err != nil {
						return err
					}
				}
				if err := flow.SubmitPlan(runCtx); err != nil {
					return err
				}
				return finishOrchestrator(cmd, ctx, runCtx, flow, wait)
			})
		},
	}
	cmd.Flags().StringArrayVar(&edits, "edit", nil, "Rewrite a task: ID=NAME[:QUERY;QUERY...]")
	cmd.Flags().StringArrayVar(&adds, "add", nil, "Add a task: NAME[:QUERY;QUERY...]")
	cmd.Flags().StringArrayVar(&removes, "remove", nil, "Remove a task by id")
	wait.register(cmd)
	return cmd
}

func parseTaskSpec(spec string) (string, []string) {
	name, rest, _ := strings.Cut(spec, ":")
	var queries []string
	for _, q := range strings.Split(rest, ";") {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	return strings.TrimSpace(name), queries
}

func currentQueries(s orchestrator.State, id string) []string {
	for _, item := range s.Plan {
		if item.ID == id {
			return item.Effective().Queries
		}
	}
	return nil
}

func newOrchestratorSelectCommand(ctx *commandContext) *cobra.Command {
	var webIDs, imageIDs []string
	var wait waitOptions

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Pick research results and generate the post",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(webIDs) == 0 && len(imageIDs) == 0 {
				return errors.New("select at least one --web or --image result")
			}
			return withOrchestrator(cmd, ctx, true, func(runCtx context.Context, flow *orchestrator.Flow) error {
				current := flow.State().Selection
				for _, id := range webIDs {
					if slices.Contains(current.WebItemIDs, id) {
						continue
					}
					if err := flow.ToggleSelection(orchestrator.ItemWeb, id); err != nil {
						return err
					}
				}
				for _, id := range imageIDs {
					if slices.Contains(current.ImageIDs, id) {
						continue
					}
					if err := flow.ToggleSelection(orchestrator.ItemImage, id); err != nil {
						return err
					}
				}
				if err := flow.SubmitSelections(runCtx); err != nil {
					return err
				}
				return finishOrchestrator(cmd, ctx, runCtx, flow, wait)
			})
		},
	}
	cmd.Flags().StringSliceVar(&webIDs, "web", nil, "Web result ids to include")
	cmd.Flags().StringSliceVar(&imageIDs, "image", nil, "Image result ids to include")
	wait.register(cmd)
	return cmd
}

func newOrchestratorRetrySubTaskCommand(ctx *commandContext) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:     "retry-subtask <sub-task-id>",
		Aliases: []string{"answer"},
		Short:   "Re-run one research sub-task, optionally with a new query",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd, ctx, true, func(runCtx context.Context, flow *orchestrator.Flow) error {
				result, err := flow.RetrySubTask(runCtx, args[0], query)
				if err != nil {
					return err
				}
				return writeOutput(cmd, ctx.outputFormat(), result, func() string {
					msg := result.Message
					if msg == "" {
						msg = "Sub-task retried"
					}
					return fmt.Sprintf("%s (%d web results, %d images)", msg, result.WebCount, result.ImageCount)
				})
			})
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Replacement search query")
	return cmd
}

func newOrchestratorRetryCommand(ctx *commandContext) *cobra.Command {
	var wait waitOptions
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Resume a failed session from the phase that failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd, ctx, true, func(runCtx context.Context, flow *orchestrator.Flow) error {
				if err := flow.Retry(runCtx); err != nil {
					return err
				}
				return finishOrchestrator(cmd, ctx, runCtx, flow, wait)
			})
		},
	}
	wait.register(cmd)
	return cmd
}

func newOrchestratorResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the current research session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd, ctx, false, func(runCtx context.Context, flow *orchestrator.Flow) error {
				if err := flow.Reset(runCtx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Research session reset")
				return nil
			})
		},
	}
}

func finishOrchestrator(cmd *cobra.Command, ctx *commandContext, runCtx context.Context, flow *orchestrator.Flow, wait waitOptions) error {
	state := flow.State()
	if wait.wait {
		var err error
		state, err = await(runCtx, cmd.ErrOrStderr(), wait.timeout, flow.OnChange, flow.State, orchestrator.State.Settled, orchestratorProgress)
		if err != nil {
			return err
		}
	}
	return writeOutput(cmd, ctx.outputFormat(), state, func() string {
		return renderOrchestrator(state, shouldColorize(cmd.OutOrStdout()))
	})
}

func orchestratorProgress(s orchestrator.State) string {
	label := phaseLabel(string(s.Phase))
	switch {
	case s.Failed():
		return "Failed: " + s.Error
	case s.Phase == orchestrator.PhaseResearch && s.Progress.Total > 0:
		return fmt.Sprintf("%s: %d/%d", label, s.Progress.Current, s.Progress.Total)
	case s.Activity != "":
		return label + ": " + s.Activity
	case s.Message != "":
		return label + ": " + s.Message
	default:
		return label
	}
}

func renderOrchestrator(s orchestrator.State, colorize bool) string {
	kind := statusInfo
	switch {
	case s.Failed():
		kind = statusError
	case s.Phase == orchestrator.PhaseComplete:
		kind = statusOK
	case s.Settled():
		kind = statusWarn
	}
	phase := phaseLabel(string(s.Phase))
	if s.Failed() && s.FailedPhase != "" {
		phase += " (during " + phaseLabel(string(s.FailedPhase)) + ")"
	}
	progress := ""
	if s.Progress.Total > 0 {
		progress = fmt.Sprintf("%d/%d", s.Progress.Current, s.Progress.Total)
	}
	sections := []string{renderPairs([][2]string{
		{"Session", s.SessionID},
		{"Influencer", s.InfluencerID},
		{"Query", truncate(s.Query, 80)},
		{"Phase", paint(kind, phase, colorize)},
		{"Progress", progress},
		{"Message", s.Message},
		{"Activity", s.Activity},
		{"Error", s.Error},
	})}

	if len(s.Plan) > 0 {
		rows := make([][]string, 0, len(s.Plan))
		for _, item := range s.Plan {
			if item.Removed {
				continue
			}
			task := item.Effective()
			status := task.Status
			if item.Local {
				status = "new"
			} else if item.Edited() {
				status = "edited"
			}
			rows = append(rows, []string{task.ID, task.Name, truncate(strings.Join(task.Queries, "; "), 60), status})
		}
		sections = append(sections, renderTable([]string{"Task", "Name", "Queries", "Status"}, rows, nil))
	}

	if len(s.Results) > 0 {
		var rows [][]string
		for _, item := range s.Plan {
			res, ok := s.Results[item.ID]
			if !ok {
				continue
			}
			for _, w := range res.WebItems {
				rows = append(rows, []string{item.ID, "web", w.ID, truncate(w.Title, 50), yesNo(slices.Contains(s.Selection.WebItemIDs, w.ID))})
			}
			for _, img := range res.Images {
				rows = append(rows, []string{item.ID, "image", img.ID, truncate(img.Title, 50), yesNo(slices.Contains(s.Selection.ImageIDs, img.ID))})
			}
		}
		sections = append(sections, renderTable([]string{"Task", "Kind", "Result", "Title", "Selected"}, rows, nil))
	}

	for _, q := range s.Questions {
		line := fmt.Sprintf("Question on %s: %s", q.SubTaskID, q.Message)
		if len(q.Options) > 0 {
			line += " [" + strings.Join(q.Options, " | ") + "]"
		}
		sections = append(sections, line)
	}

	if p := s.Post; p != nil {
		sections = append(sections, renderPairs([][2]string{
			{"Post", p.PostingID},
			{"Slides", strconv.Itoa(p.SlideCount)},
			{"Layout", p.GridLayout},
			{"Caption", truncate(p.Caption, 120)},
		}))
	}

	switch {
	case s.Failed():
		sections = append(sections, "Run `aura orchestrator retry` to resume.")
	case s.Phase == orchestrator.PhasePlanReview && !s.PlanSubmitted:
		sections = append(sections, "Run `aura orchestrator submit-plan` to start research.")
	case s.Phase == orchestrator.PhaseSelection && !s.SelectionsSubmitted:
		sections = append(sections, "Run `aura orchestrator select --web ID --image ID` to generate the post.")
	case len(s.Questions) > 0:
		sections = append(sections, "Run `aura orchestrator retry-subtask ID --query ...` to answer.")
	}
	return strings.Join(sections, "\n")
}
