package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/studio"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(runCtx context.Context, rt *studio.Runtime) error {
				if err := rt.Notifier.Publish(runCtx, notifications.EventTestNotification, notifications.Payload{
					"source": "aura test-notify",
				}); err != nil {
					return fmt.Errorf("send test notification: %w", err)
				}
				if rt.Config.Notifications.NtfyTopic == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "Test notification shown (no ntfy topic configured)")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				return nil
			})
		},
	}
}
