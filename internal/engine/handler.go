package engine

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"

	"volunteer-backend/internal/metadata"
	"volunteer-backend/internal/store"
)

type Handler struct {
	resources Resources
	paging    Paging
}

func NewHandler(resources Resources, paging Paging) *Handler {
	return &Handler{resources: resources, paging: paging}
}

// List handles GET /api/:entity
func (h *Handler) List(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	user := getUser(c)
	if err := CheckPermission(user, res.Entity, "read", nil); err != nil {
		return err
	}

	plan, err := ParseQueryParams(c, res.Entity, h.paging)
	if err != nil {
		return err
	}

	rows, total, err := res.List(c.UserContext(), plan)
	if err != nil {
		return fmt.Errorf("list %s: %w", res.Entity.Name, err)
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"page":     plan.Page,
			"per_page": plan.PerPage,
			"total":    total,
		},
	})
}

// GetByID handles GET /api/:entity/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	user := getUser(c)
	if err := CheckPermission(user, res.Entity, "read", nil); err != nil {
		return err
	}

	sel, err := ParseSelection(c.Queries())
	if err != nil {
		return err
	}

	id := c.Params("id")
	row, err := res.Get(c.UserContext(), id, sel)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(res.Entity.Name, id)
		}
		return fmt.Errorf("get %s/%s: %w", res.Entity.Name, id, err)
	}

	return c.JSON(fiber.Map{"data": row})
}

// Create handles POST /api/:entity
func (h *Handler) Create(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	user := getUser(c)
	if err := CheckPermission(user, res.Entity, "create", nil); err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}

	fields, validationErrs := PlanWrite(res.Entity, body, true, user.IsAdmin())
	if len(validationErrs) > 0 {
		return ValidationError(validationErrs)
	}
	if err := ApplyOwnership(user, res.Entity, fields, true); err != nil {
		return err
	}

	record, err := res.Repo.Create(c.UserContext(), fields)
	if err != nil {
		return writeError(err)
	}

	return c.Status(201).JSON(fiber.Map{"data": record})
}

// Update handles PUT /api/:entity/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	id := c.Params("id")

	// Verify record exists and check permissions against current state
	current, err := h.fetchCurrent(c, res, id)
	if err != nil {
		return err
	}

	user := getUser(c)
	if err := CheckPermission(user, res.Entity, "update", current); err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}

	fields, validationErrs := PlanWrite(res.Entity, body, false, user.IsAdmin())
	if len(validationErrs) > 0 {
		return ValidationError(validationErrs)
	}
	if err := ApplyOwnership(user, res.Entity, fields, false); err != nil {
		return err
	}

	record, err := res.Repo.Update(c.UserContext(), id, fields)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(res.Entity.Name, id)
		}
		return writeError(err)
	}

	return c.JSON(fiber.Map{"data": record})
}

// Delete handles DELETE /api/:entity/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	id := c.Params("id")

	current, err := h.fetchCurrent(c, res, id)
	if err != nil {
		return err
	}

	user := getUser(c)
	if err := CheckPermission(user, res.Entity, "delete", current); err != nil {
		return err
	}

	if err := res.Repo.Delete(c.UserContext(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(res.Entity.Name, id)
		}
		return fmt.Errorf("delete %s/%s: %w", res.Entity.Name, id, err)
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

func (h *Handler) resolveResource(c *fiber.Ctx) (*Resource, error) {
	name := c.Params("entity")
	res := h.resources.Get(name)
	if res == nil {
		return nil, UnknownEntityError(name)
	}
	return res, nil
}

func (h *Handler) fetchCurrent(c *fiber.Ctx, res *Resource, id string) (map[string]any, error) {
	row, err := res.Repo.FindByID(c.UserContext(), id, nil)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError(res.Entity.Name, id)
		}
		return nil, fmt.Errorf("fetch %s/%s: %w", res.Entity.Name, id, err)
	}
	return row, nil
}

func getUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

func writeError(err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if errors.Is(err, store.ErrUniqueViolation) {
		msg := "A record with this value already exists"
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			msg = pgErr.Detail
		}
		return ConflictError(msg)
	}

	return err
}
