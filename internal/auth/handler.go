package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"volunteer-backend/internal/engine"
	"volunteer-backend/internal/metadata"
	"volunteer-backend/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	store     *store.Store
	users     *engine.Resource
	jwtSecret string
}

// NewAuthHandler creates a new AuthHandler. users serves /api/auth/me.
func NewAuthHandler(s *store.Store, users *engine.Resource, jwtSecret string) *AuthHandler {
	return &AuthHandler{store: s, users: users, jwtSecret: jwtSecret}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}

	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	var details []engine.ErrorDetail
	if _, err := mail.ParseAddress(body.Email); err != nil {
		details = append(details, engine.ErrorDetail{Field: "email", Rule: "email", Message: "A valid email is required"})
	}
	if len(body.Password) < minPasswordLength {
		details = append(details, engine.ErrorDetail{Field: "password", Rule: "min_length", Message: "Password must be at least 8 characters"})
	}
	if len(details) > 0 {
		return engine.ValidationError(details)
	}

	hash, err := HashPassword(body.Password)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	userID := uuid.NewString()
	_, err = store.Exec(ctx, h.store.Pool,
		`INSERT INTO users (id, email, password_hash, display_name, first_name, last_name, roles)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		userID, body.Email, hash, body.DisplayName, body.FirstName, body.LastName, []string{metadata.RoleVolunteer})
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return engine.ConflictError("An account with this email already exists")
		}
		return err
	}

	pair, err := h.generateTokenPair(ctx, &metadata.UserContext{
		ID:    userID,
		Email: body.Email,
		Roles: []string{metadata.RoleVolunteer},
	})
	if err != nil {
		return err
	}

	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{
		"id":            userID,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	}})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	ctx := c.UserContext()

	// Look up user by email
	user, err := h.findUserByEmail(ctx, strings.ToLower(strings.TrimSpace(body.Email)))
	if err != nil {
		return engine.UnauthorizedError("Invalid email or password")
	}

	// Check if user is active
	active, _ := user["active"].(bool)
	if !active {
		return engine.UnauthorizedError("Account is disabled")
	}

	// Verify password
	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	pair, err := h.generateTokenPair(ctx, userFromRow(user, "id"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.UserContext()

	row, err := store.QueryRow(ctx, h.store.Pool,
		`SELECT rt.id::text AS id, rt.user_id, rt.expires_at, u.email, u.roles, u.active
		 FROM _refresh_tokens rt
		 JOIN users u ON u.id = rt.user_id
		 WHERE rt.token::text = $1`, body.RefreshToken)
	if err != nil {
		return engine.UnauthorizedError("Invalid refresh token")
	}

	expiresAt, _ := row["expires_at"].(time.Time)
	if time.Now().After(expiresAt) {
		_, _ = store.Exec(ctx, h.store.Pool,
			"DELETE FROM _refresh_tokens WHERE token::text = $1", body.RefreshToken)
		return engine.UnauthorizedError("Refresh token expired")
	}

	active, _ := row["active"].(bool)
	if !active {
		return engine.UnauthorizedError("Account is disabled")
	}

	// Rotation: a refresh token is good for one use
	tokenID, _ := row["id"].(string)
	_, _ = store.Exec(ctx, h.store.Pool,
		"DELETE FROM _refresh_tokens WHERE id::text = $1", tokenID)

	pair, err := h.generateTokenPair(ctx, userFromRow(row, "user_id"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	_, _ = store.Exec(c.UserContext(), h.store.Pool,
		"DELETE FROM _refresh_tokens WHERE token::text = $1", body.RefreshToken)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me handles GET /api/auth/me. It honours the fields parameter like any
// other read, so relations of the caller can be expanded.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := GetUser(c)
	if user == nil {
		return engine.UnauthorizedError("Missing auth token")
	}

	sel, err := engine.ParseSelection(c.Queries())
	if err != nil {
		return err
	}

	row, err := h.users.Get(c.UserContext(), user.ID, sel)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.NotFoundError("users", user.ID)
		}
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app. authMW
// guards /me only.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler, authMW fiber.Handler) {
	auth := app.Group("/api/auth")
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)
	auth.Post("/refresh", h.Refresh)
	auth.Post("/logout", h.Logout)
	auth.Get("/me", authMW, h.Me)
}

// --- helpers ---

func (h *AuthHandler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	return store.QueryRow(ctx, h.store.Pool,
		"SELECT id, email, password_hash, roles, active FROM users WHERE email = $1", email)
}

func (h *AuthHandler) generateTokenPair(ctx context.Context, user *metadata.UserContext) (*TokenPair, error) {
	accessToken, err := GenerateAccessToken(user, h.jwtSecret)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	expiresAt := time.Now().Add(RefreshTokenTTL)

	_, err = store.Exec(ctx, h.store.Pool,
		`INSERT INTO _refresh_tokens (user_id, token, expires_at) VALUES ($1, $2::uuid, $3)`,
		user.ID, refreshToken, expiresAt)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// userFromRow builds the token subject from a users row; idKey names the
// column holding the account id.
func userFromRow(row map[string]any, idKey string) *metadata.UserContext {
	id, _ := row[idKey].(string)
	email, _ := row["email"].(string)
	return &metadata.UserContext{ID: id, Email: email, Roles: extractRoles(row["roles"])}
}

func extractRoles(v any) []string {
	if v == nil {
		return []string{}
	}
	switch roles := v.(type) {
	case []string:
		return roles
	case []any:
		result := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return []string{}
	}
}
