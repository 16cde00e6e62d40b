package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/na399/MIMIC/internal/ingest"
)

// NewLoadCommand creates the load command.
func NewLoadCommand() *cobra.Command {
	var (
		schemaName string
		tableName  string
		mode       string
		onExists   string
		rowLimit   int
		keepCase   bool
	)

	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load a single CSV file with schema-typed columns",
		Long: `Load one CSV file (plain, .gz or single-member .zip) into a table whose
columns and types come from the DDL catalog.

The fast copy path requires the file's header to match the table's column
order exactly; otherwise each column is cast individually and empty fields
become NULL.`,
		Example: `  # Typed load with the default policy (fail if the table exists)
  mimicetl load data/hosp/patients.csv.gz --schema raw_hosp

  # Replace an existing table, keeping only the first 1000 rows
  mimicetl load data/hosp/patients.csv.gz --schema raw_hosp --on-exists replace --limit 1000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, deps, err := createEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			if schemaName == "" {
				schemaName = deps.Config.Ingest.Schema
			}
			if onExists == "" {
				onExists = deps.Config.Ingest.OnExists
			}

			opts := ingest.Options{
				OnExists: ingest.OnExists(onExists),
				Mode:     ingest.Mode(mode),
				RowLimit: rowLimit,
				KeepCase: keepCase,
			}
			if err := eng.LoadFile(cmd.Context(), args[0], schemaName, tableName, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaName, "schema", "", "destination schema (default from config)")
	cmd.Flags().StringVar(&tableName, "table", "", "destination table (default: file stem)")
	cmd.Flags().StringVar(&mode, "mode", "auto", "load path: auto, copy or insert")
	cmd.Flags().StringVar(&onExists, "on-exists", "", "policy when the table exists: fail, skip, replace or append")
	cmd.Flags().IntVar(&rowLimit, "limit", 0, "maximum rows to load (0 = unlimited, incompatible with copy mode)")
	cmd.Flags().BoolVar(&keepCase, "keep-case", false, "preserve CSV header casing")

	return cmd
}
