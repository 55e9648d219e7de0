package metadata

import "strings"

// Relation is a foreign-key reference held by Source under Key. Key may be a
// dotted path into a json field (requirements.skill).
type Relation struct {
	Key    string `json:"key"`
	Type   string `json:"type"` // one, many
	Source string `json:"source"`
	Target string `json:"target"`
}

func (r *Relation) IsMany() bool {
	return r.Type == "many"
}

// Field returns the column holding the reference: the first segment of Key.
func (r *Relation) Field() string {
	field, _, _ := strings.Cut(r.Key, ".")
	return field
}
