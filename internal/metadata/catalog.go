package metadata

import (
	"fmt"
	"strings"
)

var (
	applicationStatuses = []string{"pending", "accepted", "rejected", "withdrawn"}
	invitationStatuses  = []string{"pending", "accepted", "declined", "expired"}
	projectStatuses     = []string{"draft", "active", "completed", "archived"}
	needStatuses        = []string{"open", "filled", "closed"}
)

func idField() Field {
	return Field{Name: "id", Type: "string", Required: true}
}

func timestampFields() []Field {
	return []Field{
		{Name: "created_at", Type: "timestamp", Auto: "create"},
		{Name: "updated_at", Type: "timestamp", Auto: "update"},
	}
}

func entity(name string, fields []Field, relations ...Relation) *Entity {
	all := append([]Field{idField()}, fields...)
	all = append(all, timestampFields()...)
	return &Entity{
		Name:       name,
		Table:      name,
		PrimaryKey: PrimaryKey{Field: "id", Type: "string", Generated: true},
		Fields:     all,
		Relations:  relations,
	}
}

func one(key, target string) Relation  { return Relation{Key: key, Type: "one", Target: target} }
func many(key, target string) Relation { return Relation{Key: key, Type: "many", Target: target} }

// Catalog returns the entity definitions of the platform. Each call builds
// fresh values so callers may mutate them.
func Catalog() []*Entity {
	users := entity("users", []Field{
		{Name: "email", Type: "string", Required: true, Unique: true},
		{Name: "password_hash", Type: "string", Hidden: true},
		{Name: "first_name", Type: "string"},
		{Name: "last_name", Type: "string"},
		{Name: "display_name", Type: "string"},
		{Name: "bio", Type: "text"},
		{Name: "roles", Type: "strings", Default: "{}", AdminOnly: true, Enum: PlatformRoles},
		{Name: "active", Type: "boolean", Default: true, AdminOnly: true},
		{Name: "skills", Type: "refs", Default: "{}"},
		{Name: "tags", Type: "refs", Default: "{}"},
	},
		many("skills", "skills"),
		many("tags", "asset_tags"),
	)
	users.OwnerField = "id"

	organizations := entity("organizations", []Field{
		{Name: "name", Type: "string", Required: true},
		{Name: "description", Type: "text"},
		{Name: "website", Type: "string"},
		{Name: "owner", Type: "ref"},
		{Name: "members", Type: "refs", Default: "{}"},
		{Name: "location", Type: "json"},
	},
		one("owner", "users"),
		many("members", "users"),
	)
	organizations.OwnerField = "owner"

	projects := entity("projects", []Field{
		{Name: "name", Type: "string", Required: true},
		{Name: "description", Type: "text"},
		{Name: "status", Type: "string", Default: "draft", Enum: projectStatuses},
		{Name: "organization", Type: "ref"},
		{Name: "owner", Type: "ref"},
		{Name: "skills", Type: "refs", Default: "{}"},
		{Name: "tags", Type: "refs", Default: "{}"},
	},
		one("organization", "organizations"),
		one("owner", "users"),
		many("skills", "skills"),
		many("tags", "asset_tags"),
	)
	projects.OwnerField = "owner"

	needs := entity("needs", []Field{
		{Name: "title", Type: "string", Required: true},
		{Name: "description", Type: "text"},
		{Name: "project", Type: "ref", Required: true},
		{Name: "requirements", Type: "json"},
		{Name: "status", Type: "string", Default: "open", Enum: needStatuses},
	},
		one("project", "projects"),
		one("requirements.skill", "skills"),
	)

	applications := entity("applications", []Field{
		{Name: "user", Type: "ref"},
		{Name: "need", Type: "ref"},
		{Name: "project", Type: "ref"},
		{Name: "message", Type: "text"},
		{Name: "status", Type: "string", Default: "pending", Enum: applicationStatuses},
	},
		one("user", "users"),
		one("need", "needs"),
		one("project", "projects"),
	)
	applications.OwnerField = "user"

	invitations := entity("invitations", []Field{
		{Name: "email", Type: "string", Required: true},
		{Name: "organization", Type: "ref"},
		{Name: "project", Type: "ref"},
		{Name: "inviter", Type: "ref"},
		{Name: "invitee", Type: "ref"},
		{Name: "status", Type: "string", Default: "pending", Enum: invitationStatuses},
	},
		one("organization", "organizations"),
		one("project", "projects"),
		one("inviter", "users"),
		one("invitee", "users"),
	)
	invitations.OwnerField = "inviter"

	skills := entity("skills", []Field{
		{Name: "name", Type: "string", Required: true, Unique: true},
		{Name: "category", Type: "string"},
	})
	skills.AdminWrite = true

	assetTags := entity("asset_tags", []Field{
		{Name: "name", Type: "string", Required: true, Unique: true},
		{Name: "color", Type: "string"},
	})
	assetTags.AdminWrite = true

	return []*Entity{users, organizations, projects, needs, applications, invitations, skills, assetTags}
}

// Validate checks that every relation points at a known entity through an
// existing field of its source.
func Validate(entities []*Entity) error {
	byName := make(map[string]*Entity, len(entities))
	for _, e := range entities {
		if _, dup := byName[e.Name]; dup {
			return fmt.Errorf("duplicate entity %s", e.Name)
		}
		byName[e.Name] = e
	}

	for _, e := range entities {
		if !e.HasField(e.PrimaryKey.Field) {
			return fmt.Errorf("entity %s: primary key %s is not a field", e.Name, e.PrimaryKey.Field)
		}
		seen := make(map[string]bool, len(e.Relations))
		for _, rel := range e.Relations {
			if seen[rel.Key] {
				return fmt.Errorf("entity %s: duplicate relation %s", e.Name, rel.Key)
			}
			seen[rel.Key] = true

			if _, ok := byName[rel.Target]; !ok {
				return fmt.Errorf("entity %s: relation %s targets unknown entity %s", e.Name, rel.Key, rel.Target)
			}
			f := e.GetField(rel.Field())
			if f == nil {
				return fmt.Errorf("entity %s: relation %s has no field %s", e.Name, rel.Key, rel.Field())
			}
			dotted := strings.Contains(rel.Key, ".")
			if dotted && f.Type != "json" {
				return fmt.Errorf("entity %s: dotted relation %s needs a json field", e.Name, rel.Key)
			}
			if !dotted && rel.IsMany() != f.IsArray() {
				return fmt.Errorf("entity %s: relation %s type %s does not match field type %s", e.Name, rel.Key, rel.Type, f.Type)
			}
		}
	}
	return nil
}
