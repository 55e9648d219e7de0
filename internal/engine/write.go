package engine

import (
	"fmt"
	"math"
	"sort"

	"volunteer-backend/internal/metadata"
)

// PlanWrite validates a create or update body and returns the column values
// to write. Nothing is written; the caller hands the result to a Repository.
func PlanWrite(entity *metadata.Entity, body map[string]any, isCreate, isAdmin bool) (map[string]any, []ErrorDetail) {
	allowed := entity.UpdatableFields()
	if isCreate {
		allowed = entity.WritableFields()
	}
	byName := make(map[string]metadata.Field, len(allowed))
	for _, f := range allowed {
		byName[f.Name] = f
	}

	var errs []ErrorDetail

	// Reject unknown keys
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := byName[k]; !ok {
			errs = append(errs, ErrorDetail{
				Field:   k,
				Rule:    "unknown",
				Message: fmt.Sprintf("Unknown or read-only field: %s", k),
			})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	fields := make(map[string]any, len(body))
	for _, f := range allowed {
		raw, present := body[f.Name]
		if !present {
			if isCreate && f.Required {
				errs = append(errs, ErrorDetail{Field: f.Name, Rule: "required", Message: fmt.Sprintf("%s is required", f.Name)})
			}
			continue
		}

		if f.AdminOnly && !isAdmin {
			errs = append(errs, ErrorDetail{Field: f.Name, Rule: "admin_only", Message: fmt.Sprintf("%s can only be set by an administrator", f.Name)})
			continue
		}

		if raw == nil || raw == "" {
			if f.Required {
				errs = append(errs, ErrorDetail{Field: f.Name, Rule: "required", Message: fmt.Sprintf("%s is required", f.Name)})
				continue
			}
		}

		v, err := coerceWriteValue(f, raw)
		if err != nil {
			errs = append(errs, ErrorDetail{Field: f.Name, Rule: "type", Message: fmt.Sprintf("%s: %v", f.Name, err)})
			continue
		}
		if v != nil && !f.AllowsValue(v) {
			errs = append(errs, ErrorDetail{Field: f.Name, Rule: "enum", Message: fmt.Sprintf("%s must be one of %v", f.Name, f.Enum)})
			continue
		}
		fields[f.Name] = v
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return fields, nil
}

// coerceWriteValue converts a decoded JSON value into the Go type the column
// expects.
func coerceWriteValue(f metadata.Field, v any) (any, error) {
	if v == nil {
		if f.IsArray() {
			return []string{}, nil
		}
		return nil, nil
	}

	switch f.Type {
	case "refs", "strings":
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected an array, got %T", v)
		}
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected an array of strings, got %T at %d", item, i)
			}
			out[i] = s
		}
		return out, nil
	case "int", "bigint":
		n, ok := v.(float64)
		if !ok || n != math.Trunc(n) {
			return nil, fmt.Errorf("expected an integer, got %v", v)
		}
		return int64(n), nil
	case "decimal":
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %T", v)
		}
		return n, nil
	case "boolean":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %T", v)
		}
		return b, nil
	case "json":
		switch v.(type) {
		case map[string]any, []any:
			return v, nil
		}
		return nil, fmt.Errorf("expected an object or array, got %T", v)
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", v)
		}
		return s, nil
	}
}
