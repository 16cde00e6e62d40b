package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "run [workflow]",
		Short: "Run a configured workflow or ad-hoc SQL scripts",
		Long: `Execute legacy SQL scripts against the DuckDB warehouse.

Scripts are split into statements, translated from the BigQuery dialect to
DuckDB, and executed in order. Every statement is recorded in the run audit.`,
		Example: `  # Run the workflow named "omop" from mimicetl.yaml
  mimicetl run omop

  # Run ad-hoc scripts in order
  mimicetl run --file etl/omop_person.sql --file etl/omop_visit.sql

  # Override a script variable
  mimicetl run omop --set schema_target=omop_dev`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(files) == 0 {
				return fmt.Errorf("specify a workflow name or at least one --file")
			}
			if len(args) == 1 && len(files) > 0 {
				return fmt.Errorf("cannot combine a workflow name with --file")
			}

			eng, _, err := createEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := cmd.Context()
			if len(files) > 0 {
				if err := eng.RunScripts(ctx, files); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ran %d script(s)\n", len(files))
				return nil
			}

			if err := eng.RunWorkflow(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s completed\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "SQL script to run (repeatable, ordered)")

	return cmd
}
