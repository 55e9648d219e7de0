package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"volunteer-backend/internal/metadata"
	"volunteer-backend/internal/populate"
	"volunteer-backend/internal/store"
)

// Repository is the data access contract of one entity. FindByIDs makes
// every repository usable as a populate target.
type Repository interface {
	populate.Model

	PrimaryKey() string
	List(ctx context.Context, plan *QueryPlan) ([]map[string]any, error)
	Count(ctx context.Context, filters []WhereClause) (int64, error)
	FindByID(ctx context.Context, id any, fields []string) (map[string]any, error)
	Create(ctx context.Context, fields map[string]any) (map[string]any, error)
	Update(ctx context.Context, id any, fields map[string]any) (map[string]any, error)
	Delete(ctx context.Context, id any) error
}

// RepositoryFactory builds the repository of an entity.
type RepositoryFactory func(entity *metadata.Entity) Repository

// PgRepository stores an entity in its PostgreSQL table.
type PgRepository struct {
	q      store.Querier
	entity *metadata.Entity
}

func NewPgRepository(q store.Querier, entity *metadata.Entity) *PgRepository {
	return &PgRepository{q: q, entity: entity}
}

// PgRepositories returns a factory binding every entity to q.
func PgRepositories(q store.Querier) RepositoryFactory {
	return func(entity *metadata.Entity) Repository {
		return NewPgRepository(q, entity)
	}
}

func (r *PgRepository) PrimaryKey() string {
	return r.entity.PrimaryKey.Field
}

func (r *PgRepository) List(ctx context.Context, plan *QueryPlan) ([]map[string]any, error) {
	qr := BuildSelectSQL(plan)
	rows, err := store.QueryRows(ctx, r.q, qr.SQL, qr.Params...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.entity.Name, err)
	}
	return rows, nil
}

func (r *PgRepository) Count(ctx context.Context, filters []WhereClause) (int64, error) {
	qr := BuildCountSQL(r.entity, filters)
	row, err := store.QueryRow(ctx, r.q, qr.SQL, qr.Params...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.entity.Name, err)
	}
	total, _ := row["count"].(int64)
	return total, nil
}

func (r *PgRepository) FindByID(ctx context.Context, id any, fields []string) (map[string]any, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		joinColumns(Projection(r.entity, fields)), store.Ident(r.entity.Table), store.Ident(r.PrimaryKey()))
	return store.QueryRow(ctx, r.q, sql, fmt.Sprint(id))
}

// FindByIDs loads every record whose key is in ids with a single query.
func (r *PgRepository) FindByIDs(ctx context.Context, ids []any, fields []string) ([]any, error) {
	if len(ids) == 0 {
		return []any{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprint(id)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)",
		joinColumns(Projection(r.entity, fields)), store.Ident(r.entity.Table), store.Ident(r.PrimaryKey()))
	rows, err := store.QueryRows(ctx, r.q, sql, keys)
	if err != nil {
		return nil, fmt.Errorf("find %s by ids: %w", r.entity.Name, err)
	}

	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out, nil
}

// Create inserts a record and returns it as stored. Generated keys are
// assigned here.
func (r *PgRepository) Create(ctx context.Context, fields map[string]any) (map[string]any, error) {
	pk := r.PrimaryKey()
	values := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	if _, ok := values[pk]; !ok && r.entity.PrimaryKey.Generated {
		values[pk] = uuid.NewString()
	}

	pb := &paramBuilder{}
	var cols, placeholders []string
	for _, f := range r.entity.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		cols = append(cols, store.Ident(f.Name))
		placeholders = append(placeholders, pb.Add(v))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		store.Ident(r.entity.Table), strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		joinColumns(r.entity.VisibleFieldNames()))
	row, err := store.QueryRow(ctx, r.q, sql, pb.params...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", r.entity.Name, err)
	}
	return row, nil
}

// Update writes fields onto the record and bumps its update timestamps.
func (r *PgRepository) Update(ctx context.Context, id any, fields map[string]any) (map[string]any, error) {
	pb := &paramBuilder{}
	var sets []string
	for _, f := range r.entity.Fields {
		if f.Auto == "update" {
			sets = append(sets, fmt.Sprintf("%s = NOW()", store.Ident(f.Name)))
			continue
		}
		v, ok := fields[f.Name]
		if !ok || f.Name == r.PrimaryKey() {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", store.Ident(f.Name), pb.Add(v)))
	}
	if len(sets) == 0 {
		return r.FindByID(ctx, id, nil)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s RETURNING %s",
		store.Ident(r.entity.Table), strings.Join(sets, ", "), store.Ident(r.PrimaryKey()), pb.Add(fmt.Sprint(id)),
		joinColumns(r.entity.VisibleFieldNames()))
	row, err := store.QueryRow(ctx, r.q, sql, pb.params...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", r.entity.Name, err)
	}
	return row, nil
}

func (r *PgRepository) Delete(ctx context.Context, id any) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", store.Ident(r.entity.Table), store.Ident(r.PrimaryKey()))
	affected, err := store.Exec(ctx, r.q, sql, fmt.Sprint(id))
	if err != nil {
		return fmt.Errorf("delete %s: %w", r.entity.Name, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
