package metadata

import (
	"fmt"
	"slices"
)

type Field struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	Default   any      `json:"default,omitempty"`
	Nullable  bool     `json:"nullable,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	Precision int      `json:"precision,omitempty"`
	Auto      string   `json:"auto,omitempty"`       // "create" or "update"
	Hidden    bool     `json:"hidden,omitempty"`     // never returned by reads
	AdminOnly bool     `json:"admin_only,omitempty"` // writable by admins only
}

// PostgresType returns the Postgres DDL type for this field.
func (f Field) PostgresType() string {
	switch f.Type {
	case "string", "text", "ref":
		return "TEXT"
	case "refs", "strings":
		return "TEXT[]"
	case "int":
		return "INTEGER"
	case "bigint":
		return "BIGINT"
	case "decimal":
		if f.Precision > 0 {
			return fmt.Sprintf("NUMERIC(18,%d)", f.Precision)
		}
		return "NUMERIC"
	case "boolean":
		return "BOOLEAN"
	case "uuid":
		return "UUID"
	case "timestamp":
		return "TIMESTAMPTZ"
	case "date":
		return "DATE"
	case "json":
		return "JSONB"
	default:
		return "TEXT"
	}
}

// IsAuto returns true if the field is auto-managed by the engine.
func (f Field) IsAuto() bool {
	return f.Auto == "create" || f.Auto == "update"
}

// IsArray returns true for TEXT[] backed fields.
func (f Field) IsArray() bool {
	return f.Type == "refs" || f.Type == "strings"
}

// AllowsValue reports whether v is one of the enum values, if any are
// declared. For array fields every element must be.
func (f Field) AllowsValue(v any) bool {
	if len(f.Enum) == 0 {
		return true
	}
	switch vals := v.(type) {
	case string:
		return slices.Contains(f.Enum, vals)
	case []string:
		for _, s := range vals {
			if !slices.Contains(f.Enum, s) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
