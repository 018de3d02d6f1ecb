package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reportbridge/internal/pipeline"
	"reportbridge/internal/runs"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <flow>",
		Short: "Export from the payments platform and import into the compliance platform",
		Long: `Run executes a complete pipeline for the given flow.

Flows:
  transactions  accounting report -> KYT transaction batch
  files         registration and capture reports -> KYT users and transactions`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := parseFlow(args[0])
			if err != nil {
				return err
			}
			return ctx.withPipeline(func(p *pipeline.Pipeline, _ *runs.Store) error {
				run, err := p.Run(cmd.Context(), flow)
				if run != nil {
					printRunOutcome(cmd, run)
				}
				return err
			})
		},
	}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <flow>",
		Short: "Run only the export half, leaving staged files for a later import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := parseFlow(args[0])
			if err != nil {
				return err
			}
			return ctx.withPipeline(func(p *pipeline.Pipeline, _ *runs.Store) error {
				run, err := p.Export(cmd.Context(), flow)
				if run != nil {
					printRunOutcome(cmd, run)
				}
				return err
			})
		},
	}
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <flow>",
		Short: "Run only the import half against the last export's manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := parseFlow(args[0])
			if err != nil {
				return err
			}
			return ctx.withPipeline(func(p *pipeline.Pipeline, _ *runs.Store) error {
				run, err := p.Import(cmd.Context(), flow)
				if run != nil {
					printRunOutcome(cmd, run)
				}
				return err
			})
		},
	}
}

func printRunOutcome(cmd *cobra.Command, run *runs.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s) finished with status %s\n", run.ID, run.Flow, run.Status)
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Error: %s\n", run.ErrorMessage)
	}
}
