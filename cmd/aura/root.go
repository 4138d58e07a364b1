package main

import (
	"github.com/spf13/cobra"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/studio"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWithOptions(studio.Options{})
}

func newRootCommandWithOptions(opts studio.Options) *cobra.Command {
	var configFlag string
	var outputFlag string
	var quietFlag bool
	var verboseFlag bool

	ctx := newCommandContext(&configFlag, &outputFlag, &quietFlag, &verboseFlag, opts)

	rootCmd := &cobra.Command{
		Use:           "aura",
		Short:         "Aura influencer studio CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.outputFormat().validate(); err != nil {
				return err
			}
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", string(outputTable), "Output format: table, json, or yaml")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress console notices")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(newLoginCommand(ctx))
	rootCmd.AddCommand(newLogoutCommand(ctx))
	rootCmd.AddCommand(newCreationCommand(ctx))
	rootCmd.AddCommand(newOrchestratorCommand(ctx))
	rootCmd.AddCommand(newPostsCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))

	return rootCmd
}
