package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewIngestCommand creates the ingest command.
func NewIngestCommand() *cobra.Command {
	var (
		schemaName    string
		publishSchema string
	)

	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Load a folder of CSV files into the warehouse",
		Long: `Load every *.csv, *.csv.gz and *.csv.zip file in a folder.

Files whose table appears in the DDL catalog are loaded with exact column
types; the rest fall back to DuckDB's CSV type inference. The destination
table name is the file stem.`,
		Example: `  # Load the hosp module into raw_hosp using the config's ddl catalog
  mimicetl ingest data/hosp --schema raw_hosp --ddl ddl/mimiciv_hosp.sql

  # Load a demo subset and publish it under the full dataset's schema name
  mimicetl ingest data/demo --schema raw_demo --publish raw_hosp`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, deps, err := createEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			dir := deps.Config.Ingest.SourceDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("specify a source folder (argument or ingest.source_dir)")
			}
			if schemaName == "" {
				schemaName = deps.Config.Ingest.Schema
			}

			ctx := cmd.Context()
			if err := eng.IngestFolder(ctx, dir, schemaName); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s into %s\n", dir, schemaName)

			if publishSchema != "" {
				if err := eng.CreateSchemaViews(ctx, schemaName, publishSchema); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Published %s views over %s\n", publishSchema, schemaName)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaName, "schema", "", "destination schema (default from config)")
	cmd.Flags().StringVar(&publishSchema, "publish", "", "also publish the loaded tables as views under this schema")

	return cmd
}
