package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reportbridge/internal/runs"
)

var labelCaser = cases.Title(language.English)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit        int
		statusFilter string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var wantStatus runs.Status
			if statusFilter != "" {
				parsed, ok := runs.ParseStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFilter)
				}
				wantStatus = parsed
			}
			return ctx.withStore(func(store *runs.Store) error {
				listed, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if wantStatus != "" {
					filtered := listed[:0]
					for _, run := range listed {
						if run.Status == wantStatus {
							filtered = append(filtered, run)
						}
					}
					listed = filtered
				}
				if len(listed) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet")
					return nil
				}

				rows := make([][]string, 0, len(listed))
				for _, run := range listed {
					rows = append(rows, []string{
						shortID(run.ID),
						labelCaser.String(string(run.Flow)),
						statusLabel(run.Status),
						run.StartDate + " .. " + run.EndDate,
						run.UpdatedAt.Local().Format(time.DateTime),
						truncate(run.ErrorMessage, 60),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Run", "Flow", "Status", "Window", "Updated", "Error"},
					rows,
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Only list runs with this status")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func statusLabel(status runs.Status) string {
	return labelCaser.String(strings.ReplaceAll(string(status), "_", " "))
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}
