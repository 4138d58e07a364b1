package main

import (
	"github.com/spf13/cobra"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var opts watch.Options

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow active workflows and print each change",
		Long: "Follow the active creation and research sessions, plus any posts or\n" +
			"influencer feeds named by flags, printing one line per change until\n" +
			"interrupted. Only one watcher may run per state directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := cfg.Logging.Level
			if ctx.verboseFlag != nil && *ctx.verboseFlag {
				level = "debug"
			}
			rt, err := ctx.openRuntime(cmd, level)
			if err != nil {
				return err
			}
			defer rt.Close()

			opts.Out = cmd.OutOrStdout()
			watcher, err := watch.New(rt, opts)
			if err != nil {
				return err
			}
			return watcher.Run(cmd.Context())
		},
	}
	cmd.Flags().StringSliceVar(&opts.Posts, "post", nil, "Post ids to follow")
	cmd.Flags().StringSliceVar(&opts.Influencers, "influencer", nil, "Influencer ids whose feed to follow")
	cmd.Flags().BoolVar(&opts.ExitWhenSettled, "exit-when-settled", false, "Exit once every workflow is finished or waiting on input")
	return cmd
}
