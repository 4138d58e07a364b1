package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/preflight"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/studio"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, backend reachability, and login",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(runCtx context.Context, rt *studio.Runtime) error {
				results := preflight.RunAll(runCtx, preflight.Inputs{
					Config: rt.Config,
					Client: rt.Client,
					Tokens: rt.Credentials,
				})
				err := writeOutput(cmd, ctx.outputFormat(), results, func() string {
					colorize := shouldColorize(cmd.OutOrStdout())
					rows := make([][]string, 0, len(results))
					for _, r := range results {
						kind := statusOK
						switch {
						case r.Passed:
						case r.Warn:
							kind = statusWarn
						default:
							kind = statusError
						}
						rows = append(rows, []string{r.Name, paint(kind, statusKindLabel(kind), colorize), r.Detail})
					}
					return renderTable([]string{"Check", "Status", "Detail"}, rows, nil)
				})
				if err != nil {
					return err
				}
				if preflight.Failed(results) {
					return errors.New("one or more checks failed")
				}
				if ctx.outputFormat() == outputTable {
					fmt.Fprintln(cmd.OutOrStdout(), "All checks passed")
				}
				return nil
			})
		},
	}
}
