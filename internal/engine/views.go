package engine

import (
	"context"
	"fmt"
)

// CreateSchemaViews publishes every relation in sourceSchema as a
// same-named view in targetSchema. Stale relations in the target schema
// are dropped first so renamed or removed source tables do not linger.
func (e *Engine) CreateSchemaViews(ctx context.Context, sourceSchema, targetSchema string) error {
	if err := e.ensureDBConnected(ctx); err != nil {
		return err
	}

	if err := e.db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+targetSchema); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", targetSchema, err)
	}

	stale, err := e.db.ListRelations(ctx, targetSchema)
	if err != nil {
		return err
	}
	for _, rel := range stale {
		drop := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", targetSchema, rel.Name)
		if rel.Type == "VIEW" {
			drop = fmt.Sprintf("DROP VIEW IF EXISTS %s.%s", targetSchema, rel.Name)
		}
		if err := e.db.Exec(ctx, drop); err != nil {
			return fmt.Errorf("failed to drop stale %s.%s: %w", targetSchema, rel.Name, err)
		}
	}

	relations, err := e.db.ListRelations(ctx, sourceSchema)
	if err != nil {
		return err
	}
	if len(relations) == 0 {
		return fmt.Errorf("schema %s has no relations to publish", sourceSchema)
	}

	for _, rel := range relations {
		create := fmt.Sprintf("CREATE OR REPLACE VIEW %s.%s AS SELECT * FROM %s.%s",
			targetSchema, rel.Name, sourceSchema, rel.Name)
		if err := e.db.Exec(ctx, create); err != nil {
			return fmt.Errorf("failed to create view %s.%s: %w", targetSchema, rel.Name, err)
		}
	}

	e.logger.Info("published schema views",
		"source", sourceSchema, "target", targetSchema, "views", len(relations))
	return nil
}

// MaterializeViews converts every view in a schema into a same-named
// table. Each view is materialized into a temporary table, then swapped in
// under the view's name.
func (e *Engine) MaterializeViews(ctx context.Context, schemaName string) error {
	if err := e.ensureDBConnected(ctx); err != nil {
		return err
	}

	relations, err := e.db.ListRelations(ctx, schemaName)
	if err != nil {
		return err
	}

	materialized := 0
	for _, rel := range relations {
		if rel.Type != "VIEW" {
			continue
		}

		steps := []string{
			fmt.Sprintf("CREATE TABLE %s.__tmp_materialized AS SELECT * FROM %s.%s",
				schemaName, schemaName, rel.Name),
			fmt.Sprintf("DROP VIEW %s.%s", schemaName, rel.Name),
			fmt.Sprintf("ALTER TABLE %s.__tmp_materialized RENAME TO %s", schemaName, rel.Name),
		}
		for _, stmt := range steps {
			if err := e.db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to materialize %s.%s: %w", schemaName, rel.Name, err)
			}
		}

		e.logger.Debug("materialized view", "view", schemaName+"."+rel.Name)
		materialized++
	}

	e.logger.Info("materialized views", "schema", schemaName, "count", materialized)
	return nil
}
