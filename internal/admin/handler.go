package admin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"volunteer-backend/internal/engine"
	"volunteer-backend/internal/metadata"
	"volunteer-backend/internal/store"
)

// Handler serves catalog and trace introspection for administrators.
type Handler struct {
	db        store.Querier
	registry  *metadata.Registry
	resources engine.Resources
}

func NewHandler(db store.Querier, reg *metadata.Registry, resources engine.Resources) *Handler {
	return &Handler{db: db, registry: reg, resources: resources}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/entities", h.ListEntities)
	admin.Get("/entities/:name", h.GetEntity)

	admin.Get("/events", h.ListEvents)
	admin.Get("/events/:trace_id", h.GetTrace)
}

// EntityInfo describes an entity together with the relations its reads can
// expand through the fields parameter.
type EntityInfo struct {
	*metadata.Entity
	Populates []string `json:"populates"`
}

func (h *Handler) describe(e *metadata.Entity) EntityInfo {
	info := EntityInfo{Entity: e, Populates: []string{}}
	if res := h.resources.Get(e.Name); res != nil {
		info.Populates = res.Populator.Keys()
	}
	return info
}

// --- Entity Endpoints ---

func (h *Handler) ListEntities(c *fiber.Ctx) error {
	entities := h.registry.AllEntities()
	out := make([]EntityInfo, len(entities))
	for i, e := range entities {
		out[i] = h.describe(e)
	}
	return c.JSON(fiber.Map{"data": out})
}

func (h *Handler) GetEntity(c *fiber.Ctx) error {
	name := c.Params("name")
	e := h.registry.GetEntity(name)
	if e == nil {
		return engine.UnknownEntityError(name)
	}
	return c.JSON(fiber.Map{"data": h.describe(e)})
}

// --- Event Endpoints ---

var eventFilters = []string{"trace_id", "event_type", "component", "action", "entity", "record_id", "user_id", "status"}

const eventColumns = "trace_id, span_id, parent_span_id, event_type, component, action, entity, record_id, user_id, duration_ms, status, metadata, created_at"

// ListEvents handles GET /api/_admin/events with equality filters, a time
// range and pagination.
func (h *Handler) ListEvents(c *fiber.Ctx) error {
	var conditions []string
	var args []any
	add := func(expr string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(expr, len(args)))
	}

	for _, name := range eventFilters {
		if v := c.Query(name); v != "" {
			add(name+" = $%d", v)
		}
	}
	if v := c.Query("from"); v != "" {
		add("created_at >= $%d::timestamptz", v)
	}
	if v := c.Query("to"); v != "" {
		add("created_at <= $%d::timestamptz", v)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}

	orderBy := "created_at DESC"
	if c.Query("sort") == "created_at" {
		orderBy = "created_at ASC"
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	ctx := c.UserContext()
	countRow, err := store.QueryRow(ctx, h.db, "SELECT COUNT(*) AS count FROM _events"+where, args...)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}

	sql := fmt.Sprintf("SELECT %s FROM _events%s ORDER BY %s LIMIT %d OFFSET %d",
		eventColumns, where, orderBy, perPage, (page-1)*perPage)
	rows, err := store.QueryRows(ctx, h.db, sql, args...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    countRow["count"],
		},
	})
}

// GetTrace handles GET /api/_admin/events/:trace_id. Spans are returned in
// start order with the root span's duration as the trace duration.
func (h *Handler) GetTrace(c *fiber.Ctx) error {
	traceID := c.Params("trace_id")
	rows, err := store.QueryRows(c.UserContext(), h.db,
		"SELECT "+eventColumns+" FROM _events WHERE trace_id = $1 ORDER BY created_at ASC", traceID)
	if err != nil {
		return fmt.Errorf("get trace %s: %w", traceID, err)
	}
	if len(rows) == 0 {
		return engine.NotFoundError("trace", traceID)
	}

	var duration any
	for _, row := range rows {
		if row["parent_span_id"] == nil && row["event_type"] == "span" {
			duration = row["duration_ms"]
			break
		}
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"trace_id":    traceID,
			"duration_ms": duration,
			"spans":       rows,
		},
	})
}
