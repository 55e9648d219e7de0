// Package populate resolves foreign-key references on documents into the
// records they point to, driven by a per-request expand tree.
package populate

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"volunteer-backend/internal/partial"
)

// Document is a record under population. It is mutated in place.
type Document = map[string]any

// Model is the target store a relation resolves against.
type Model interface {
	// FindByIDs returns the records whose primary key is in ids, restricted
	// to fields when fields is non-empty. Records are plain maps or Plainers.
	FindByIDs(ctx context.Context, ids []any, fields []string) ([]any, error)
}

// Plainer is implemented by records that need converting to plain data
// before they are written onto a document.
type Plainer interface {
	Plain() map[string]any
}

// primaryKeyer lets a Model name its key field. Defaults to "id".
type primaryKeyer interface {
	PrimaryKey() string
}

var (
	ErrMissingKey   = errors.New("populate: key is required")
	ErrMissingModel = errors.New("populate: model is required")
	ErrDuplicateKey = errors.New("populate: key already registered")
	ErrFrozen       = errors.New("populate: registrations are frozen")
)

type registration struct {
	key   string
	model Model
}

// Service holds the relations of one entity type. Registrations happen at
// startup; after Freeze the table is read-only and Populate may be called
// from any number of goroutines.
type Service struct {
	name      string
	order     []string
	populates map[string]registration
	frozen    bool
}

// New creates an empty Service for the named entity.
func New(name string) *Service {
	return &Service{
		name:      name,
		populates: make(map[string]registration),
	}
}

// Name returns the entity name the service was created for.
func (s *Service) Name() string {
	return s.name
}

// AddPopulate registers model as the target store of key. key may be a
// dotted path into the document.
func (s *Service) AddPopulate(key string, model Model) error {
	if key == "" {
		return ErrMissingKey
	}
	if model == nil {
		return fmt.Errorf("%w (key %q)", ErrMissingModel, key)
	}
	if s.frozen {
		return fmt.Errorf("%w: %s.%s", ErrFrozen, s.name, key)
	}
	if _, exists := s.populates[key]; exists {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateKey, s.name, key)
	}
	s.populates[key] = registration{key: key, model: model}
	s.order = append(s.order, key)
	return nil
}

// Freeze closes the registration table.
func (s *Service) Freeze() {
	s.frozen = true
}

// Keys returns the registered relation keys in registration order.
func (s *Service) Keys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Has reports whether key has a registered populate.
func (s *Service) Has(key string) bool {
	_, ok := s.populates[key]
	return ok
}

// PopulateOne expands the relations of a single document.
func (s *Service) PopulateOne(ctx context.Context, doc Document, expands *partial.Tree) (Document, error) {
	if doc == nil {
		return nil, nil
	}
	if expands.Len() == 0 {
		return doc, nil
	}
	docs, err := s.populate(ctx, []Document{doc}, expands)
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// PopulateMany expands the relations of every document in docs. The slice
// and its documents are returned as given, mutated in place.
func (s *Service) PopulateMany(ctx context.Context, docs []Document, expands *partial.Tree) ([]Document, error) {
	if docs == nil {
		return nil, nil
	}
	if expands.Len() == 0 || len(docs) == 0 {
		return docs, nil
	}
	return s.populate(ctx, docs, expands)
}

func (s *Service) populate(ctx context.Context, docs []Document, expands *partial.Tree) ([]Document, error) {
	var jobs []*collection
	for _, node := range expands.Nodes() {
		reg, ok := s.populates[node.MemberName]
		if !ok {
			// plain fields are part of the base projection
			if len(node.Nodes) > 0 {
				log.Printf("populate %s: no populate registered for %q, skipping", s.name, node.MemberName)
			}
			continue
		}
		jobs = append(jobs, s.collect(reg, node, docs))
	}
	if len(jobs) == 0 {
		return docs, nil
	}

	// Fetches overlap; write-back waits for all of them so a failure leaves
	// every document untouched.
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		if len(job.ids) == 0 {
			continue
		}
		job := job
		g.Go(func() error {
			return job.fetch(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, job := range jobs {
		job.splice(docs)
	}
	return docs, nil
}

// reference is what one document holds under a relation key.
type reference struct {
	skip    bool
	isArray bool
	values  []any
}

// collection is one relation resolved over a batch of documents.
type collection struct {
	service string
	reg     registration
	fields  []string
	refs    []reference
	ids     []any
	found   map[string]any
}

func (s *Service) collect(reg registration, node *partial.Node, docs []Document) *collection {
	c := &collection{
		service: s.name,
		reg:     reg,
		fields:  node.SelectFields(),
		refs:    make([]reference, len(docs)),
	}

	seen := make(map[string]bool)
	addID := func(v any) {
		if v == nil {
			return
		}
		k := idKey(v)
		if !seen[k] {
			seen[k] = true
			c.ids = append(c.ids, v)
		}
	}

	for i, doc := range docs {
		if doc == nil {
			c.refs[i].skip = true
			continue
		}
		v, ok := getPath(doc, reg.key)
		if !ok {
			log.Printf("populate %s: document %d has no %q, skipping", s.name, i, reg.key)
			c.refs[i].skip = true
			continue
		}
		if v == nil {
			c.refs[i].skip = true
			continue
		}
		if list, isList := asList(v); isList {
			c.refs[i] = reference{isArray: true, values: list}
			for _, id := range list {
				addID(id)
			}
			continue
		}
		c.refs[i] = reference{values: []any{v}}
		addID(v)
	}
	return c
}

func (c *collection) fetch(ctx context.Context) error {
	records, err := c.reg.model.FindByIDs(ctx, c.ids, c.fields)
	if err != nil {
		return fmt.Errorf("populate %s.%s: %w", c.service, c.reg.key, err)
	}

	pk := "id"
	if k, ok := c.reg.model.(primaryKeyer); ok && k.PrimaryKey() != "" {
		pk = k.PrimaryKey()
	}

	c.found = make(map[string]any, len(records))
	for _, rec := range records {
		plain := toPlain(rec)
		m, ok := plain.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := m[pk]; ok && id != nil {
			c.found[idKey(id)] = m
		}
	}
	return nil
}

func (c *collection) splice(docs []Document) {
	for i, doc := range docs {
		ref := c.refs[i]
		if ref.skip {
			continue
		}

		if ref.isArray {
			out := make([]any, 0, len(ref.values))
			for _, id := range ref.values {
				if rec, ok := c.found[idKey(id)]; ok {
					out = append(out, rec)
				}
			}
			setPath(doc, c.reg.key, out)
			continue
		}

		if rec, ok := c.found[idKey(ref.values[0])]; ok {
			setPath(doc, c.reg.key, rec)
		} else {
			deletePath(doc, c.reg.key)
		}
	}
}
