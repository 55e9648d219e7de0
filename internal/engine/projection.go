package engine

import (
	"strings"

	"volunteer-backend/internal/metadata"
)

// Projection turns fields tokens ("name", "-bio", "requirements.skill") into
// the columns to select. The primary key is always kept and hidden fields
// never appear. With no inclusions every visible field is selected minus
// the exclusions. Unknown and hidden names select nothing, so a list whose
// inclusions all fail to resolve selects only the primary key.
func Projection(entity *metadata.Entity, tokens []string) []string {
	visible := entity.VisibleFieldNames()
	if len(tokens) == 0 {
		return visible
	}

	include := make(map[string]bool)
	exclude := make(map[string]bool)
	inclusive := false
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		excluded := strings.HasPrefix(tok, "-")
		if !excluded {
			inclusive = true
		}
		name, _, _ := strings.Cut(strings.TrimPrefix(tok, "-"), ".")

		f := entity.GetField(name)
		if f == nil || f.Hidden {
			continue
		}
		if excluded {
			exclude[name] = true
		} else {
			include[name] = true
		}
	}

	pk := entity.PrimaryKey.Field
	cols := make([]string, 0, len(visible))
	for _, name := range visible {
		switch {
		case name == pk:
			cols = append(cols, name)
		case exclude[name]:
		case !inclusive || include[name]:
			cols = append(cols, name)
		}
	}
	return cols
}
