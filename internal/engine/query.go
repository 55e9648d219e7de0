package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"volunteer-backend/internal/metadata"
	"volunteer-backend/internal/partial"
	"volunteer-backend/internal/store"
)

// Paging holds the list pagination limits.
type Paging struct {
	DefaultPerPage int
	MaxPerPage     int
}

type QueryPlan struct {
	Entity  *metadata.Entity
	Filters []WhereClause
	Sorts   []OrderClause
	Page    int
	PerPage int
	// Selection is nil when the request carried no fields parameter.
	Selection *partial.Result
}

type WhereClause struct {
	Field    string
	Operator string
	Value    any
	Array    bool // field is TEXT[]; eq matches membership
}

type OrderClause struct {
	Field string
	Dir   string // ASC or DESC
}

type QueryResult struct {
	SQL    string
	Params []any
}

type paramBuilder struct {
	params []any
	n      int
}

func (p *paramBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

// Fields returns the base projection tokens, or nil without a selection.
func (p *QueryPlan) Fields() []string {
	if p.Selection == nil {
		return nil
	}
	return p.Selection.Fields
}

// Expands returns the expand tree, or nil without a selection.
func (p *QueryPlan) Expands() *partial.Tree {
	if p.Selection == nil {
		return nil
	}
	return p.Selection.Expands
}

// ParseQueryParams parses Fiber query parameters into a QueryPlan.
func ParseQueryParams(c *fiber.Ctx, entity *metadata.Entity, paging Paging) (*QueryPlan, error) {
	plan := &QueryPlan{
		Entity:  entity,
		Page:    1,
		PerPage: paging.DefaultPerPage,
	}
	if plan.PerPage <= 0 {
		plan.PerPage = 25
	}

	queries := c.Queries()

	// Parse filters: filter[field]=val or filter[field.op]=val
	for key, val := range queries {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		inner := key[7 : len(key)-1]
		field, op := parseFilterKey(inner)

		f := entity.GetField(field)
		if f == nil || f.Hidden {
			return nil, &AppError{
				Code:    "UNKNOWN_FIELD",
				Status:  400,
				Message: fmt.Sprintf("Unknown filter field: %s", field),
			}
		}

		coerced, err := coerceValue(f, val, op)
		if err != nil {
			return nil, &AppError{
				Code:    "INVALID_PAYLOAD",
				Status:  400,
				Message: fmt.Sprintf("Invalid filter value for %s: %v", field, err),
			}
		}

		plan.Filters = append(plan.Filters, WhereClause{
			Field:    field,
			Operator: op,
			Value:    coerced,
			Array:    f.IsArray(),
		})
	}

	// Parse sort: sort=-created_at,name
	if sortParam := c.Query("sort"); sortParam != "" {
		for _, part := range strings.Split(sortParam, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			dir := "ASC"
			field := part
			if strings.HasPrefix(part, "-") {
				dir = "DESC"
				field = part[1:]
			}
			if f := entity.GetField(field); f == nil || f.Hidden {
				return nil, &AppError{
					Code:    "UNKNOWN_FIELD",
					Status:  400,
					Message: fmt.Sprintf("Unknown sort field: %s", field),
				}
			}
			plan.Sorts = append(plan.Sorts, OrderClause{Field: field, Dir: dir})
		}
	}

	// Parse pagination
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			plan.Page = v
		}
	}
	if pp := c.Query("per_page"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 {
			plan.PerPage = v
			if paging.MaxPerPage > 0 && plan.PerPage > paging.MaxPerPage {
				plan.PerPage = paging.MaxPerPage
			}
		}
	}

	sel, err := ParseSelection(queries)
	if err != nil {
		return nil, err
	}
	plan.Selection = sel

	return plan, nil
}

// ParseSelection parses the fields parameter only when the request has one,
// so an empty fields= still selects. Parse failures are 400 AppErrors.
func ParseSelection(queries map[string]string) (*partial.Result, error) {
	if _, ok := queries[partial.FieldsParam]; !ok {
		return nil, nil
	}
	sel, err := partial.Parse(queries)
	if err != nil {
		if errors.Is(err, partial.ErrInvalidArgument) {
			return nil, InvalidArgumentError(err.Error())
		}
		return nil, err
	}
	return sel, nil
}

// BuildSelectSQL builds a parameterized SELECT statement from the query plan.
func BuildSelectSQL(plan *QueryPlan) QueryResult {
	pb := &paramBuilder{}
	entity := plan.Entity

	where := buildWhere(plan.Filters, pb)

	sql := fmt.Sprintf("SELECT %s FROM %s", joinColumns(Projection(entity, plan.Fields())), store.Ident(entity.Table))
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	if len(plan.Sorts) > 0 {
		var orderParts []string
		for _, s := range plan.Sorts {
			orderParts = append(orderParts, fmt.Sprintf("%s %s", store.Ident(s.Field), s.Dir))
		}
		sql += " ORDER BY " + strings.Join(orderParts, ", ")
	}

	limit := pb.Add(plan.PerPage)
	offset := pb.Add((plan.Page - 1) * plan.PerPage)
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)

	return QueryResult{SQL: sql, Params: pb.params}
}

// BuildCountSQL builds a COUNT query with the same filters as the select.
func BuildCountSQL(entity *metadata.Entity, filters []WhereClause) QueryResult {
	pb := &paramBuilder{}

	sql := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", store.Ident(entity.Table))
	if where := buildWhere(filters, pb); len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	return QueryResult{SQL: sql, Params: pb.params}
}

func buildWhere(filters []WhereClause, pb *paramBuilder) []string {
	where := make([]string, 0, len(filters))
	for _, f := range filters {
		where = append(where, buildWhereClause(f, pb))
	}
	return where
}

func buildWhereClause(f WhereClause, pb *paramBuilder) string {
	col := store.Ident(f.Field)
	if f.Array {
		switch f.Operator {
		case "neq":
			return fmt.Sprintf("NOT (%s = ANY(%s))", pb.Add(f.Value), col)
		case "in":
			return fmt.Sprintf("%s && %s", col, pb.Add(f.Value))
		default:
			return fmt.Sprintf("%s = ANY(%s)", pb.Add(f.Value), col)
		}
	}

	switch f.Operator {
	case "eq", "":
		return fmt.Sprintf("%s = %s", col, pb.Add(f.Value))
	case "neq":
		return fmt.Sprintf("%s != %s", col, pb.Add(f.Value))
	case "gt":
		return fmt.Sprintf("%s > %s", col, pb.Add(f.Value))
	case "gte":
		return fmt.Sprintf("%s >= %s", col, pb.Add(f.Value))
	case "lt":
		return fmt.Sprintf("%s < %s", col, pb.Add(f.Value))
	case "lte":
		return fmt.Sprintf("%s <= %s", col, pb.Add(f.Value))
	case "in":
		return fmt.Sprintf("%s = ANY(%s)", col, pb.Add(f.Value))
	case "not_in":
		return fmt.Sprintf("%s != ALL(%s)", col, pb.Add(f.Value))
	case "like":
		return fmt.Sprintf("%s LIKE %s", col, pb.Add(f.Value))
	default:
		return fmt.Sprintf("%s = %s", col, pb.Add(f.Value))
	}
}

// parseFilterKey splits "total.gte" into ("total", "gte") or "status" into ("status", "eq").
func parseFilterKey(key string) (string, string) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, "eq"
}

// coerceValue converts string query param values to appropriate Go types based on field metadata.
func coerceValue(field *metadata.Field, val string, op string) (any, error) {
	// Handle "in" and "not_in" as comma-separated arrays
	if op == "in" || op == "not_in" {
		parts := strings.Split(val, ",")
		if field.IsArray() {
			out := make([]string, len(parts))
			for i, p := range parts {
				out[i] = strings.TrimSpace(p)
			}
			return out, nil
		}
		coerced := make([]any, len(parts))
		for i, p := range parts {
			v, err := coerceSingleValue(field, strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			coerced[i] = v
		}
		return coerced, nil
	}

	return coerceSingleValue(field, val)
}

func coerceSingleValue(field *metadata.Field, val string) (any, error) {
	switch field.Type {
	case "int":
		return strconv.Atoi(val)
	case "bigint":
		return strconv.ParseInt(val, 10, 64)
	case "decimal":
		return strconv.ParseFloat(val, 64)
	case "boolean":
		return strconv.ParseBool(val)
	default:
		return val, nil
	}
}

func joinColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = store.Ident(c)
	}
	return strings.Join(quoted, ", ")
}
