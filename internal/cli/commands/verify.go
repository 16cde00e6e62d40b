package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand() *cobra.Command {
	var schemaName string

	cmd := &cobra.Command{
		Use:   "verify <table>...",
		Short: "Verify that required tables exist in a schema",
		Long: `Check that every named table exists in the given schema. All missing
tables are reported, not just the first. Useful as a preflight before
running a workflow that depends on external vocabularies.`,
		Example: `  mimicetl verify --schema vocab concept concept_relationship vocabulary domain`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := createEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.VerifyTables(cmd.Context(), schemaName, args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "All %d table(s) present in %s\n", len(args), schemaName)
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaName, "schema", "main", "schema to check")

	return cmd
}
