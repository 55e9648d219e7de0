package metadata

type Entity struct {
	Name       string     `json:"name"`
	Table      string     `json:"table"`
	PrimaryKey PrimaryKey `json:"primary_key"`
	Fields     []Field    `json:"fields"`
	Relations  []Relation `json:"relations,omitempty"`
	OwnerField string     `json:"owner_field,omitempty"` // field holding the owning user id
	AdminWrite bool       `json:"admin_write,omitempty"` // only admins may create/update/delete
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"` // uuid, int, bigint, string
	Generated bool   `json:"generated"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// VisibleFieldNames returns the names of fields that reads may return.
func (e *Entity) VisibleFieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if !f.Hidden {
			names = append(names, f.Name)
		}
	}
	return names
}

// WritableFields returns fields that can be set by the client.
// Excludes auto-generated PKs, auto-timestamp and hidden fields.
func (e *Entity) WritableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field && e.PrimaryKey.Generated {
			continue
		}
		if f.IsAuto() || f.Hidden {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// UpdatableFields returns fields that can be set on UPDATE.
// Excludes PK, auto and hidden fields.
func (e *Entity) UpdatableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field {
			continue
		}
		if f.IsAuto() || f.Hidden {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// GetRelation returns the relation stored under key, or nil.
func (e *Entity) GetRelation(key string) *Relation {
	for i := range e.Relations {
		if e.Relations[i].Key == key {
			return &e.Relations[i]
		}
	}
	return nil
}
