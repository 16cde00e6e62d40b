// Package cli provides the command-line interface for mimicetl.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/na399/MIMIC/internal/cli/commands"
	"github.com/na399/MIMIC/internal/config"
)

var (
	cfgFile      string
	varOverrides []string
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mimicetl",
		Short: "mimicetl - MIMIC-IV to OMOP ETL for DuckDB",
		Long: `mimicetl converts legacy BigQuery-dialect ETL scripts to DuckDB and runs
them against a local warehouse. It ingests the MIMIC-IV CSV exports with
schema-typed loading, executes the OMOP transformation workflows, and keeps
an audit trail of every run.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			if err := config.ApplyVariableOverrides(cfg, varOverrides); err != nil {
				return err
			}

			logger := slog.New(slog.DiscardHandler)
			if cfg.Verbose {
				logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: slog.LevelDebug,
				}))
			}

			cmd.SetContext(commands.WithDeps(cmd.Context(), &commands.Deps{
				Config: cfg,
				Logger: logger,
			}))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
MIMIC-IV ETL built with Go and DuckDB
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mimicetl.yaml)")
	rootCmd.PersistentFlags().String("database", "", "path to the DuckDB warehouse")
	rootCmd.PersistentFlags().String("state", "", "path to the run-audit database")
	rootCmd.PersistentFlags().String("ddl", "", "path to the CREATE TABLE script used for typed loads")
	rootCmd.PersistentFlags().StringArrayVar(&varOverrides, "set", nil, "override a script variable (NAME=VALUE, repeatable)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewIngestCommand())
	rootCmd.AddCommand(commands.NewLoadCommand())
	rootCmd.AddCommand(commands.NewVerifyCommand())
	rootCmd.AddCommand(commands.NewMaterializeCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
