package engine

import (
	"context"
	"fmt"

	"volunteer-backend/internal/instrument"
	"volunteer-backend/internal/metadata"
)

// Traced wraps every repository built by factory so its reads and writes
// show up as spans of the request trace.
func Traced(factory RepositoryFactory) RepositoryFactory {
	return func(entity *metadata.Entity) Repository {
		return &tracedRepository{Repository: factory(entity), entity: entity.Name}
	}
}

type tracedRepository struct {
	Repository
	entity string
}

func (r *tracedRepository) span(ctx context.Context, action string) (context.Context, *instrument.Span) {
	ctx, span := instrument.StartSpan(ctx, "repository", action)
	span.SetEntity(r.entity)
	return ctx, span
}

func (r *tracedRepository) List(ctx context.Context, plan *QueryPlan) ([]map[string]any, error) {
	ctx, span := r.span(ctx, "list")
	rows, err := r.Repository.List(ctx, plan)
	span.SetMetadata("rows", len(rows))
	span.EndWith(err)
	return rows, err
}

func (r *tracedRepository) Count(ctx context.Context, filters []WhereClause) (int64, error) {
	ctx, span := r.span(ctx, "count")
	n, err := r.Repository.Count(ctx, filters)
	span.EndWith(err)
	return n, err
}

func (r *tracedRepository) FindByID(ctx context.Context, id any, fields []string) (map[string]any, error) {
	ctx, span := r.span(ctx, "find_by_id")
	row, err := r.Repository.FindByID(ctx, id, fields)
	span.EndWith(err)
	return row, err
}

// FindByIDs is the batch fetch behind population.
func (r *tracedRepository) FindByIDs(ctx context.Context, ids []any, fields []string) ([]any, error) {
	ctx, span := r.span(ctx, "find_by_ids")
	span.SetMetadata("ids", len(ids))
	if len(fields) > 0 {
		span.SetMetadata("fields", fields)
	}
	records, err := r.Repository.FindByIDs(ctx, ids, fields)
	span.SetMetadata("found", len(records))
	span.EndWith(err)
	return records, err
}

func (r *tracedRepository) Create(ctx context.Context, fields map[string]any) (map[string]any, error) {
	ctx, span := r.span(ctx, "create")
	row, err := r.Repository.Create(ctx, fields)
	span.EndWith(err)
	if err == nil {
		instrument.Emit(ctx, "create", r.entity, r.recordID(row))
	}
	return row, err
}

func (r *tracedRepository) Update(ctx context.Context, id any, fields map[string]any) (map[string]any, error) {
	ctx, span := r.span(ctx, "update")
	row, err := r.Repository.Update(ctx, id, fields)
	span.EndWith(err)
	if err == nil {
		instrument.Emit(ctx, "update", r.entity, r.recordID(row))
	}
	return row, err
}

func (r *tracedRepository) Delete(ctx context.Context, id any) error {
	ctx, span := r.span(ctx, "delete")
	err := r.Repository.Delete(ctx, id)
	span.EndWith(err)
	if err == nil {
		instrument.Emit(ctx, "delete", r.entity, fmt.Sprint(id))
	}
	return err
}

func (r *tracedRepository) recordID(row map[string]any) string {
	if v, ok := row[r.PrimaryKey()]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
