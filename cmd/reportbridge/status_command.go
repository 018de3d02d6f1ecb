package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reportbridge/internal/preflight"
	"reportbridge/internal/runs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the local environment and show the last run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			rows := make([][]string, 0, 8)
			addCheck := func(result preflight.Result) {
				rows = append(rows, []string{result.Name, yesNo(result.Passed), result.Detail})
			}
			for _, result := range preflight.RunAll(cfg) {
				addCheck(result)
			}
			addCheck(credentialCheck("Payments credentials", cfg.ValidateMovingPayCredentials()))
			addCheck(credentialCheck("Compliance credentials", cfg.ValidateGuenoCredentials()))
			fmt.Fprintln(out, renderTable([]string{"Check", "OK", "Detail"}, rows))

			return ctx.withStore(func(store *runs.Store) error {
				listed, err := store.List(cmd.Context(), 1)
				if err != nil {
					return err
				}
				if len(listed) == 0 {
					fmt.Fprintln(out, "No runs recorded yet")
					return nil
				}
				last := listed[0]
				fmt.Fprintf(out, "Last run: %s (%s) %s, window %s .. %s\n",
					shortID(last.ID), last.Flow, statusLabel(last.Status), last.StartDate, last.EndDate)
				if !last.Status.Terminal() {
					fmt.Fprintln(out, "The last run is still in progress or was interrupted")
				}
				if last.ErrorMessage != "" {
					fmt.Fprintf(out, "Last error: %s\n", last.ErrorMessage)
				}
				return nil
			})
		},
	}
}

func credentialCheck(name string, err error) preflight.Result {
	if err != nil {
		return preflight.Result{Name: name, Detail: err.Error()}
	}
	return preflight.Result{Name: name, Passed: true, Detail: "configured"}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
