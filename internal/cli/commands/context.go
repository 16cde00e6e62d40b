package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/na399/MIMIC/internal/config"
	"github.com/na399/MIMIC/internal/engine"
)

// Deps carries the loaded configuration and logger into commands.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
}

type depsKey struct{}

// WithDeps stores command dependencies in a context.
func WithDeps(ctx context.Context, deps *Deps) context.Context {
	return context.WithValue(ctx, depsKey{}, deps)
}

// depsFrom retrieves dependencies from the command context, with safe
// defaults when the root command did not run (tests).
func depsFrom(cmd *cobra.Command) *Deps {
	if d, ok := cmd.Context().Value(depsKey{}).(*Deps); ok {
		return d
	}
	return &Deps{
		Config: &config.Config{},
		Logger: slog.New(slog.DiscardHandler),
	}
}

// createEngine builds an engine from the command's dependencies.
func createEngine(cmd *cobra.Command) (*engine.Engine, *Deps, error) {
	deps := depsFrom(cmd)
	eng, err := engine.New(deps.Config, deps.Logger)
	if err != nil {
		return nil, nil, err
	}
	return eng, deps, nil
}
