package store

import (
	"testing"

	"volunteer-backend/internal/metadata"
)

func TestBuildColumnDef(t *testing.T) {
	entity := &metadata.Entity{
		Name:       "projects",
		Table:      "projects",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "string", Generated: true},
	}

	tests := []struct {
		field metadata.Field
		want  string
	}{
		{metadata.Field{Name: "id", Type: "string", Required: true}, `"id" TEXT PRIMARY KEY`},
		{metadata.Field{Name: "name", Type: "string", Required: true}, `"name" TEXT NOT NULL`},
		{metadata.Field{Name: "owner", Type: "ref"}, `"owner" TEXT`},
		{metadata.Field{Name: "skills", Type: "refs", Default: "{}"}, `"skills" TEXT[] DEFAULT '{}'`},
		{metadata.Field{Name: "status", Type: "string", Default: "it's"}, `"status" TEXT DEFAULT 'it''s'`},
		{metadata.Field{Name: "active", Type: "boolean", Default: true}, `"active" BOOLEAN DEFAULT true`},
		{metadata.Field{Name: "created_at", Type: "timestamp", Auto: "create"}, `"created_at" TIMESTAMPTZ DEFAULT NOW()`},
		{metadata.Field{Name: "location", Type: "json"}, `"location" JSONB`},
	}

	for _, tt := range tests {
		if got := BuildColumnDef(entity, tt.field); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.field.Name, tt.want, got)
		}
	}
}
