package engine

import (
	"context"
	"fmt"
	"strings"
)

// VerifyTables asserts that every required table exists in the schema.
// All missing tables are named in the error, not just the first.
func (e *Engine) VerifyTables(ctx context.Context, schemaName string, required []string) error {
	if err := e.ensureDBConnected(ctx); err != nil {
		return err
	}

	relations, err := e.db.ListRelations(ctx, schemaName)
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(relations))
	for _, rel := range relations {
		present[strings.ToLower(rel.Name)] = true
	}

	var missing []string
	for _, name := range required {
		if !present[strings.ToLower(name)] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema %s is missing required tables: %s",
			schemaName, strings.Join(missing, ", "))
	}

	e.logger.Info("verified tables", "schema", schemaName, "tables", len(required))
	return nil
}
