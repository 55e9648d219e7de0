package engine

import (
	"context"
	"fmt"

	"volunteer-backend/internal/metadata"
	"volunteer-backend/internal/partial"
	"volunteer-backend/internal/populate"
)

// Resource ties an entity to its repository and populate service.
type Resource struct {
	Entity    *metadata.Entity
	Repo      Repository
	Populator *populate.Service
}

// List returns one page of records and the total matching the plan's filters.
// Relations named in the plan's selection are expanded.
func (r *Resource) List(ctx context.Context, plan *QueryPlan) ([]map[string]any, int64, error) {
	rows, err := r.Repo.List(ctx, plan)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.Repo.Count(ctx, plan.Filters)
	if err != nil {
		return nil, 0, err
	}
	if rows == nil {
		return []map[string]any{}, total, nil
	}

	rows, err = r.Populator.PopulateMany(ctx, rows, plan.Expands())
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Get returns one record, projected and expanded by sel. sel may be nil.
func (r *Resource) Get(ctx context.Context, id any, sel *partial.Result) (map[string]any, error) {
	var fields []string
	var expands *partial.Tree
	if sel != nil {
		fields, expands = sel.Fields, sel.Expands
	}

	row, err := r.Repo.FindByID(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	return r.Populator.PopulateOne(ctx, row, expands)
}

// Resources indexes resources by entity name.
type Resources map[string]*Resource

func (rs Resources) Get(name string) *Resource {
	return rs[name]
}

// BuildResources creates a resource per registered entity and registers each
// relation against the repository of its target. Populate services are frozen
// before returning.
func BuildResources(reg *metadata.Registry, factory RepositoryFactory) (Resources, error) {
	entities := reg.AllEntities()
	resources := make(Resources, len(entities))
	for _, e := range entities {
		resources[e.Name] = &Resource{
			Entity:    e,
			Repo:      factory(e),
			Populator: populate.New(e.Name),
		}
	}

	for _, e := range entities {
		res := resources[e.Name]
		for _, rel := range reg.GetRelationsForSource(e.Name) {
			target := resources[rel.Target]
			if target == nil {
				return nil, fmt.Errorf("entity %s: relation %s targets unknown entity %s", e.Name, rel.Key, rel.Target)
			}
			if err := res.Populator.AddPopulate(rel.Key, target.Repo); err != nil {
				return nil, fmt.Errorf("entity %s: %w", e.Name, err)
			}
		}
		res.Populator.Freeze()
	}
	return resources, nil
}
