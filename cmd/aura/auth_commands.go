package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/credentials"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/studio"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the bearer token used for API calls",
		Long: "Store the bearer token used for API calls.\n\n" +
			"Pass the token with --token, or pipe it on stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			value := strings.TrimSpace(token)
			if value == "" {
				read, err := readToken(cmd.InOrStdin())
				if err != nil {
					return err
				}
				value = read
			}
			return ctx.withRuntime(cmd, func(runCtx context.Context, rt *studio.Runtime) error {
				claims, inspectErr := credentials.Inspect(value)
				if inspectErr == nil && claims.Expired(time.Now()) {
					return fmt.Errorf("token expired at %s", claims.ExpiresAt.Format(time.RFC3339))
				}
				if err := rt.Credentials.SetToken(runCtx, value); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case inspectErr != nil:
					fmt.Fprintln(out, "Token stored (not a JWT; expiry unknown)")
				case claims.UserID != "" && claims.HasExpiry():
					fmt.Fprintf(out, "Logged in as %s (expires %s)\n", claims.UserID, claims.ExpiresAt.Local().Format(time.RFC1123))
				case claims.UserID != "":
					fmt.Fprintf(out, "Logged in as %s\n", claims.UserID)
				default:
					fmt.Fprintln(out, "Token stored")
				}
				if strings.TrimSpace(rt.Config.API.Token) != "" {
					fmt.Fprintln(out, "Note: api.token (or AURA_TOKEN) is set and takes precedence over the stored token")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Bearer token")
	return cmd
}

func readToken(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return "", errors.New("no token given: pass --token or pipe it on stdin")
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(runCtx context.Context, rt *studio.Runtime) error {
				if err := rt.Credentials.Logout(runCtx, "user"); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}
