package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/creation"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/studio"
)

var errNoCreation = errors.New("no creation session found; start one with `aura creation start`")

func newCreationCommand(ctx *commandContext) *cobra.Command {
	creationCmd := &cobra.Command{
		Use:     "creation",
		Aliases: []string{"create-influencer"},
		Short:   "Create an influencer: avatars, persona, review",
	}
	creationCmd.AddCommand(newCreationStartCommand(ctx))
	creationCmd.AddCommand(newCreationStatusCommand(ctx))
	creationCmd.AddCommand(newCreationSelectCommand(ctx))
	creationCmd.AddCommand(newCreationConfirmCommand(ctx))
	creationCmd.AddCommand(newCreationDiscardCommand(ctx))
	creationCmd.AddCommand(newCreationRetryCommand(ctx))
	return creationCmd
}

// withCreation opens a creation flow and rejoins the persisted session. When
// required is set and no session exists, errNoCreation is returned.
func withCreation(cmd *cobra.Command, ctx *commandContext, required bool, fn func(context.Context, *creation.Flow) error) error {
	return ctx.withRuntime(cmd, func(runCtx context.Context, rt *studio.Runtime) error {
		flow, err := rt.Creation()
		if err != nil {
			return err
		}
		defer flow.Close()
		restored, err := flow.Restore(runCtx)
		if err != nil {
			return err
		}
		if required && !restored {
			return errNoCreation
		}
		return fn(runCtx, flow)
	})
}

func newCreationStartCommand(ctx *commandContext) *cobra.Command {
	var location, prompt string
	var wait waitOptions

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a creation session and generate avatar images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCreation(cmd, ctx, false, func(runCtx context.Context, flow *creation.Flow) error {
				if err := flow.Start(runCtx, location, prompt); err != nil {
					return err
				}
				return finishCreation(cmd, ctx, runCtx, flow, wait)
			})
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", "", "Where the influencer lives")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Description of the influencer")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("prompt")
	wait.register(cmd)
	return cmd
}

func newCreationStatusCommand(ctx *commandContext) *cobra.Command {
	var wait waitOptions
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current creation session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCreation(cmd, ctx, true, func(runCtx context.Context, flow *creation.Flow) error {
				return finishCreation(cmd, ctx, runCtx, flow, wait)
			})
		},
	}
	wait.register(cmd)
	return cmd
}

func newCreationSelectCommand(ctx *commandContext) *cobra.Command {
	var wait waitOptions
	cmd := &cobra.Command{
		Use:   "select <avatar-url|number>",
		Short: "Choose an avatar and generate the persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCreation(cmd, ctx, true, func(runCtx context.Context, flow *creation.Flow) error {
				url, err := resolveAvatar(flow.State(), args[0])
				if err != nil {
					return err
				}
				if err := flow.SelectAvatar(runCtx, url); err != nil {
					return err
				}
				return finishCreation(cmd, ctx, runCtx, flow, wait)
			})
		},
	}
	wait.register(cmd)
	return cmd
}

// resolveAvatar accepts either an offered URL or its 1-based position.
func resolveAvatar(state creation.State, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(state.AvatarURLs) {
			return "", fmt.Errorf("avatar %d out of range (1-%d)", n, len(state.AvatarURLs))
		}
		return state.AvatarURLs[n-1], nil
	}
	return arg, nil
}

func newCreationConfirmCommand(ctx *commandContext) *cobra.Command {
	var name, handle, bio string
	var niches []string

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm the reviewed persona and create the influencer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCreation(cmd, ctx, true, func(runCtx context.Context, flow *creation.Flow) error {
				var edits creation.Edits
				if cmd.Flags().Changed("name") {
					edits.Name = &name
				}
				if cmd.Flags().Changed("handle") {
					edits.Handle = &handle
				}
				if cmd.Flags().Changed("bio") {
					edits.Bio = &bio
				}
				if cmd.Flags().Changed("niche") {
					edits.Niches = niches
				}
				if !edits.Empty() {
					if err := flow.Edit(edits); err != nil {
						return err
					}
				}
				influencer, err := flow.Confirm(runCtx)
				if err != nil {
					return err
				}
				return writeOutput(cmd, ctx.outputFormat(), influencer, func() string {
					return renderPairs([][2]string{
						{"Influencer", influencer.ID},
						{"Name", influencer.Name},
						{"Handle", influencer.Handle},
						{"Location", influencer.Location},
						{"Bio", truncate(influencer.Bio, 120)},
						{"Niches", strings.Join(influencer.Niches, ", ")},
					})
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Override the persona name")
	cmd.Flags().StringVar(&handle, "handle", "", "Override the persona handle")
	cmd.Flags().StringVar(&bio, "bio", "", "Override the persona bio")
	cmd.Flags().StringSliceVar(&niches, "niche", nil, "Override the persona niches (repeatable)")
	return cmd
}

func newCreationDiscardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discard",
		Short: "Abandon the current creation session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCreation(cmd, ctx, false, func(runCtx context.Context, flow *creation.Flow) error {
				if err := flow.Discard(runCtx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Creation session discarded")
				return nil
			})
		},
	}
}

func newCreationRetryCommand(ctx *commandContext) *cobra.Command {
	var wait waitOptions
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Start over with the inputs of a failed session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCreation(cmd, ctx, true, func(runCtx context.Context, flow *creation.Flow) error {
				if err := flow.Retry(runCtx); err != nil {
					return err
				}
				return finishCreation(cmd, ctx, runCtx, flow, wait)
			})
		},
	}
	wait.register(cmd)
	return cmd
}

// finishCreation optionally waits for the session to settle, then prints it.
func finishCreation(cmd *cobra.Command, ctx *commandContext, runCtx context.Context, flow *creation.Flow, wait waitOptions) error {
	state := flow.State()
	if wait.wait {
		var err error
		state, err = await(runCtx, cmd.ErrOrStderr(), wait.timeout, flow.OnChange, flow.State, creation.State.Settled, creationProgress)
		if err != nil {
			return err
		}
	}
	return writeOutput(cmd, ctx.outputFormat(), state, func() string {
		return renderCreation(state, shouldColorize(cmd.OutOrStdout()))
	})
}

func creationProgress(s creation.State) string {
	if s.Failed {
		return "Failed: " + s.Error
	}
	if s.Message == "" {
		return phaseLabel(string(s.Step))
	}
	return phaseLabel(string(s.Step)) + ": " + s.Message
}

func renderCreation(s creation.State, colorize bool) string {
	kind := statusInfo
	step := phaseLabel(string(s.Step))
	switch {
	case s.Failed:
		kind = statusError
		step += " (failed)"
	case s.Step == creation.StepComplete:
		kind = statusOK
	case s.Settled():
		kind = statusWarn
	}
	pairs := [][2]string{
		{"Session", s.SessionID},
		{"Step", paint(kind, step, colorize)},
		{"Message", s.Message},
		{"Error", s.Error},
		{"Location", s.Location},
		{"Prompt", truncate(s.Prompt, 80)},
	}
	for i, url := range s.AvatarURLs {
		label := ""
		if i == 0 {
			label = "Avatars"
		}
		marker := ""
		if url == s.SelectedAvatar {
			marker = " *"
		}
		pairs = append(pairs, [2]string{label, fmt.Sprintf("%d. %s%s", i+1, url, marker)})
	}
	if p := s.Draft; p != nil {
		pairs = append(pairs,
			[2]string{"Name", p.Name},
			[2]string{"Handle", p.Handle},
			[2]string{"Bio", truncate(p.Bio, 120)},
			[2]string{"Niches", strings.Join(p.Niches, ", ")},
			[2]string{"Tone", p.Tone},
		)
	}
	pairs = append(pairs, [2]string{"Influencer", s.InfluencerID})
	out := renderPairs(pairs)
	switch {
	case s.Failed:
		out += "\nRun `aura creation retry` to try again."
	case s.Step == creation.StepSelectAvatar:
		out += "\nRun `aura creation select <number>` to choose an avatar."
	case s.Step == creation.StepReview:
		out += "\nRun `aura creation confirm` to create the influencer."
	}
	return out
}
