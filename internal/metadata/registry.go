package metadata

import "sync"

type Registry struct {
	mu                sync.RWMutex
	entities          map[string]*Entity
	order             []string
	relationsBySource map[string][]*Relation // keyed by source entity name
}

func NewRegistry() *Registry {
	return &Registry{
		entities:          make(map[string]*Entity),
		relationsBySource: make(map[string][]*Relation),
	}
}

// GetEntity returns the entity with the given name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// AllEntities returns all registered entities in load order.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		entities = append(entities, r.entities[name])
	}
	return entities
}

// GetRelationsForSource returns all relations where source matches the given entity.
func (r *Registry) GetRelationsForSource(entityName string) []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationsBySource[entityName]
}

// Load replaces all entities in the registry. Relations are taken from the
// entities themselves and stamped with their source.
func (r *Registry) Load(entities []*Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*Entity, len(entities))
	r.order = make([]string, 0, len(entities))
	r.relationsBySource = make(map[string][]*Relation)
	for _, e := range entities {
		r.entities[e.Name] = e
		r.order = append(r.order, e.Name)
		for i := range e.Relations {
			rel := &e.Relations[i]
			rel.Source = e.Name
			r.relationsBySource[e.Name] = append(r.relationsBySource[e.Name], rel)
		}
	}
}
