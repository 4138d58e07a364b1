package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/posts"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/studio"
)

func newPostsCommand(ctx *commandContext) *cobra.Command {
	postsCmd := &cobra.Command{
		Use:     "posts",
		Aliases: []string{"post"},
		Short:   "Generate and manage influencer posts",
	}
	postsCmd.AddCommand(newPostsListCommand(ctx))
	postsCmd.AddCommand(newPostsShowCommand(ctx))
	postsCmd.AddCommand(newPostsCreateCommand(ctx))
	postsCmd.AddCommand(newPostsVideosCommand(ctx))
	postsCmd.AddCommand(newPostsRetryCommand(ctx))
	postsCmd.AddCommand(newPostsDeleteCommand(ctx))
	return postsCmd
}

func withTracker(cmd *cobra.Command, ctx *commandContext, fn func(context.Context, *posts.Tracker) error) error {
	return ctx.withRuntime(cmd, func(runCtx context.Context, rt *studio.Runtime) error {
		tracker, err := rt.PostTracker()
		if err != nil {
			return err
		}
		defer tracker.Close()
		return fn(runCtx, tracker)
	})
}

func newPostsListCommand(ctx *commandContext) *cobra.Command {
	var influencerID string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the posts of an influencer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(runCtx context.Context, rt *studio.Runtime) error {
				items, err := rt.Posts().List(runCtx, influencerID)
				if err != nil {
					return err
				}
				return writeOutput(cmd, ctx.outputFormat(), items, func() string {
					if len(items) == 0 {
						return "No posts"
					}
					colorize := shouldColorize(cmd.OutOrStdout())
					rows := make([][]string, 0, len(items))
					for _, p := range items {
						rows = append(rows, []string{
							p.ID,
							paint(postKind(p), phaseLabel(string(p.Status)), colorize),
							strconv.Itoa(len(p.Slides())),
							truncate(postTitle(p), 50),
							p.CreatedAt,
						})
					}
					return renderTable([]string{"ID", "Status", "Slides", "Prompt", "Created"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
				})
			})
		},
	}
	cmd.Flags().StringVarP(&influencerID, "influencer", "i", "", "Influencer id")
	_ = cmd.MarkFlagRequired("influencer")
	return cmd
}

func newPostsShowCommand(ctx *commandContext) *cobra.Command {
	var wait waitOptions
	cmd := &cobra.Command{
		Use:   "show <post-id>",
		Short: "Show one post and its slides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd, ctx, func(runCtx context.Context, tracker *posts.Tracker) error {
				if err := tracker.Track(runCtx, args[0]); err != nil {
					return err
				}
				return finishPost(cmd, ctx, runCtx, tracker, wait)
			})
		},
	}
	wait.register(cmd)
	return cmd
}

func newPostsCreateCommand(ctx *commandContext) *cobra.Command {
	var req posts.CreateRequest
	var wait waitOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate a new post for an influencer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(req.Prompt) == "" {
				return fmt.Errorf("--prompt must not be empty")
			}
			return withTracker(cmd, ctx, func(runCtx context.Context, tracker *posts.Tracker) error {
				if _, err := tracker.Create(runCtx, req); err != nil {
					return err
				}
				return finishPost(cmd, ctx, runCtx, tracker, wait)
			})
		},
	}
	cmd.Flags().StringVarP(&req.InfluencerID, "influencer", "i", "", "Influencer id")
	cmd.Flags().StringVarP(&req.Prompt, "prompt", "p", "", "What the post should show")
	cmd.Flags().StringVar(&req.Platform, "platform", "", "Target platform, such as instagram")
	cmd.Flags().StringVar(&req.ReferenceImageURL, "reference-image", "", "Image URL the generator should build on")
	_ = cmd.MarkFlagRequired("influencer")
	_ = cmd.MarkFlagRequired("prompt")
	wait.register(cmd)
	return cmd
}

func newPostsVideosCommand(ctx *commandContext) *cobra.Command {
	var opts posts.VideoOptions
	var wait waitOptions
	cmd := &cobra.Command{
		Use:   "videos <post-id>",
		Short: "Generate slide videos for a ready post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd, ctx, func(runCtx context.Context, tracker *posts.Tracker) error {
				if err := tracker.Track(runCtx, args[0]); err != nil {
					return err
				}
				if _, err := tracker.GenerateVideos(runCtx, opts); err != nil {
					return err
				}
				return finishPost(cmd, ctx, runCtx, tracker, wait)
			})
		},
	}
	cmd.Flags().IntVar(&opts.Duration, "duration", 0, "Clip length in seconds (server default when 0)")
	cmd.Flags().StringVar(&opts.AspectRatio, "aspect-ratio", "", "Clip aspect ratio, such as 9:16")
	wait.register(cmd)
	return cmd
}

func newPostsRetryCommand(ctx *commandContext) *cobra.Command {
	var wait waitOptions
	cmd := &cobra.Command{
		Use:   "retry <post-id>",
		Short: "Generate a failed post again from its prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd, ctx, func(runCtx context.Context, tracker *posts.Tracker) error {
				if err := tracker.Track(runCtx, args[0]); err != nil {
					return err
				}
				if _, err := tracker.Retry(runCtx); err != nil {
					return err
				}
				return finishPost(cmd, ctx, runCtx, tracker, wait)
			})
		},
	}
	wait.register(cmd)
	return cmd
}

func newPostsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <post-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a post",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd, ctx, func(runCtx context.Context, tracker *posts.Tracker) error {
				if err := tracker.Track(runCtx, args[0]); err != nil {
					return err
				}
				if err := tracker.Delete(runCtx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted post %s\n", args[0])
				return nil
			})
		},
	}
}

func finishPost(cmd *cobra.Command, ctx *commandContext, runCtx context.Context, tracker *posts.Tracker, wait waitOptions) error {
	state := tracker.State()
	if wait.wait {
		var err error
		state, err = await(runCtx, cmd.ErrOrStderr(), wait.timeout, tracker.OnChange, tracker.State, posts.State.Settled, postProgress)
		if err != nil {
			return err
		}
	}
	return writeOutput(cmd, ctx.outputFormat(), state, func() string {
		return renderPost(state, shouldColorize(cmd.OutOrStdout()))
	})
}

func postKind(p posts.Post) statusKind {
	switch {
	case p.Status.Failed():
		return statusError
	case p.Status.Generating():
		return statusInfo
	case p.Status.Settled():
		return statusOK
	default:
		return statusWarn
	}
}

func postTitle(p posts.Post) string {
	if p.Prompt != "" {
		return p.Prompt
	}
	if p.Story != nil {
		return p.Story.Caption
	}
	return p.Content
}

func postProgress(s posts.State) string {
	label := phaseLabel(string(s.Post.Status))
	switch {
	case s.Post.Status.Failed():
		return "Failed: " + s.Post.Error
	case s.Message != "":
		return label + ": " + s.Message
	default:
		return label
	}
}

func renderPost(s posts.State, colorize bool) string {
	p := s.Post
	status := phaseLabel(string(p.Status))
	if p.VideoStatus != "" {
		status += " (video " + p.VideoStatus + ")"
	}
	caption := ""
	if p.Story != nil {
		caption = p.Story.Caption
	}
	sections := []string{renderPairs([][2]string{
		{"Post", p.ID},
		{"Influencer", p.InfluencerID},
		{"Status", paint(postKind(p), status, colorize)},
		{"Prompt", truncate(p.Prompt, 80)},
		{"Platform", p.Platform},
		{"Caption", truncate(caption, 120)},
		{"Message", s.Message},
		{"Error", p.Error},
		{"Created", p.CreatedAt},
	})}

	if slides := s.Slides(); len(slides) > 0 {
		rows := make([][]string, 0, len(slides))
		for _, slide := range slides {
			rows = append(rows, []string{strconv.Itoa(slide.Index + 1), slide.ImageURL, truncate(slide.Caption, 40), slide.VideoURL})
		}
		sections = append(sections, renderTable([]string{"#", "Image", "Caption", "Video"}, rows, nil))
	}

	switch {
	case p.Status == posts.StatusFailed:
		sections = append(sections, fmt.Sprintf("Run `aura posts retry %s` to generate it again.", p.ID))
	case p.Status == posts.StatusReady && !s.Loading():
		sections = append(sections, fmt.Sprintf("Run `aura posts videos %s` to animate the slides.", p.ID))
	}
	return strings.Join(sections, "\n")
}
