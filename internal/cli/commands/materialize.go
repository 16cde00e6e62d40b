package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMaterializeCommand creates the materialize command.
func NewMaterializeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "materialize <schema>",
		Short: "Convert every view in a schema into a table",
		Long: `Materialize all views in a schema as same-named tables. Each view's
result is written to a temporary table and swapped in under the view's
name, so downstream queries stop paying the view's cost.`,
		Example: `  mimicetl materialize omop`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := createEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.MaterializeViews(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Materialized views in %s\n", args[0])
			return nil
		},
	}

	return cmd
}
