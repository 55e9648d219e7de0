package metadata

import (
	"fmt"
	"slices"
)

// Platform roles held in users.roles.
const (
	RoleVolunteer = "user"
	RoleAdmin     = "admin"
)

// PlatformRoles is the enum of users.roles, in rank order.
var PlatformRoles = []string{RoleVolunteer, RoleAdmin}

// UserContext is the caller of a request, set by the auth middleware from
// the access token.
type UserContext struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles"`
}

func (u *UserContext) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

func (u *UserContext) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// Owns reports whether record belongs to u through entity's owner field.
// Entities without an owner field belong to nobody in particular, so every
// caller owns their rows. For users the owner field is the primary key and
// only the account itself matches.
func (u *UserContext) Owns(entity *Entity, record map[string]any) bool {
	if entity.OwnerField == "" {
		return true
	}
	if record == nil {
		return false
	}
	v, ok := record[entity.OwnerField]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == u.ID
}

// NormalizeRoles keeps the platform roles found in raw, deduplicated and in
// PlatformRoles order. Anything else a token or row carries is dropped.
func NormalizeRoles(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, role := range PlatformRoles {
		if slices.Contains(raw, role) {
			out = append(out, role)
		}
	}
	return out
}
