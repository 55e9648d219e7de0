package engine

import (
	"fmt"

	"volunteer-backend/internal/metadata"
)

// CheckPermission verifies that the user is allowed to perform the given action
// on the given entity. For update/delete, currentRecord is the existing record
// to check ownership against. Returns nil if allowed.
func CheckPermission(user *metadata.UserContext, entity *metadata.Entity, action string, currentRecord map[string]any) error {
	if user == nil {
		return UnauthorizedError("Authentication required")
	}

	// Admin bypasses all permission checks
	if user.IsAdmin() {
		return nil
	}

	if action == "read" {
		return nil
	}

	if entity.AdminWrite {
		return ForbiddenError(fmt.Sprintf("Only administrators may %s %s", action, entity.Name))
	}

	// Accounts are created through registration
	if action == "create" && entity.OwnerField == entity.PrimaryKey.Field {
		return ForbiddenError(fmt.Sprintf("Permission denied for %s on %s", action, entity.Name))
	}

	if action != "create" && !user.Owns(entity, currentRecord) {
		return ForbiddenError(fmt.Sprintf("Permission denied for %s on %s", action, entity.Name))
	}
	return nil
}

// ApplyOwnership stamps the owner field of a new record with the caller and
// keeps non-admins from handing a record to someone else.
func ApplyOwnership(user *metadata.UserContext, entity *metadata.Entity, fields map[string]any, isCreate bool) error {
	owner := entity.OwnerField
	if owner == "" || owner == entity.PrimaryKey.Field || user == nil {
		return nil
	}

	v, present := fields[owner]
	if user.IsAdmin() {
		if isCreate && (!present || v == nil) {
			fields[owner] = user.ID
		}
		return nil
	}

	if present && v != nil && fmt.Sprint(v) != user.ID {
		return ForbiddenError(fmt.Sprintf("%s must be the current user", owner))
	}
	if isCreate {
		fields[owner] = user.ID
	}
	return nil
}
