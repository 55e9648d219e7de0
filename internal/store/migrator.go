package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"volunteer-backend/internal/metadata"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// MigrateAll migrates every entity in order.
func (m *Migrator) MigrateAll(ctx context.Context, entities []*metadata.Entity) error {
	for _, e := range entities {
		if err := m.Migrate(ctx, e); err != nil {
			return fmt.Errorf("migrate %s: %w", e.Name, err)
		}
	}
	log.Printf("Migrated %d entity tables", len(entities))
	return nil
}

// Migrate ensures the Postgres table matches the entity metadata.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, entity *metadata.Entity) error {
	exists, err := m.tableExists(ctx, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, entity)
	}

	return m.alterTable(ctx, entity)
}

func (m *Migrator) tableExists(ctx context.Context, tableName string) (bool, error) {
	var exists bool
	err := m.store.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (m *Migrator) createTable(ctx context.Context, entity *metadata.Entity) error {
	var cols []string
	for _, f := range entity.Fields {
		cols = append(cols, BuildColumnDef(entity, f))
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", Ident(entity.Table), strings.Join(cols, ",\n  "))

	if _, err := m.store.Pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}

	return nil
}

func (m *Migrator) alterTable(ctx context.Context, entity *metadata.Entity) error {
	existing, err := m.getColumns(ctx, entity.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.Table, err)
	}

	for _, f := range entity.Fields {
		if _, ok := existing[f.Name]; ok {
			continue
		}
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", Ident(entity.Table), Ident(f.Name), f.PostgresType())
		if def := defaultClause(f); def != "" {
			sql += def
		}
		if _, err := m.store.Pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", entity.Table, f.Name, err)
		}
	}

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}

	return nil
}

// BuildColumnDef renders the DDL of one column.
func BuildColumnDef(entity *metadata.Entity, f metadata.Field) string {
	col := Ident(f.Name) + " " + f.PostgresType()

	if f.Name == entity.PrimaryKey.Field {
		col += " PRIMARY KEY"
		if entity.PrimaryKey.Generated && entity.PrimaryKey.Type == "uuid" {
			col += " DEFAULT gen_random_uuid()"
		}
		return col
	}

	if f.Required && !f.Nullable {
		col += " NOT NULL"
	}
	col += defaultClause(f)

	return col
}

func defaultClause(f metadata.Field) string {
	if f.Type == "timestamp" && f.IsAuto() {
		return " DEFAULT NOW()"
	}
	if f.Default == nil {
		return ""
	}
	switch v := f.Default.(type) {
	case string:
		return fmt.Sprintf(" DEFAULT '%s'", strings.ReplaceAll(v, "'", "''"))
	case float64, int:
		return fmt.Sprintf(" DEFAULT %v", v)
	case bool:
		return fmt.Sprintf(" DEFAULT %t", v)
	default:
		return fmt.Sprintf(" DEFAULT '%v'", v)
	}
}

func (m *Migrator) getColumns(ctx context.Context, tableName string) (map[string]string, error) {
	rows, err := m.store.Pool.Query(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = 'public'`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

func (m *Migrator) createIndexes(ctx context.Context, entity *metadata.Entity) error {
	for _, f := range entity.Fields {
		if !f.Unique {
			continue
		}
		sql := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			Ident("idx_"+entity.Table+"_"+f.Name), Ident(entity.Table), Ident(f.Name))
		if _, err := m.store.Pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("create unique index on %s.%s: %w", entity.Table, f.Name, err)
		}
	}
	return nil
}
