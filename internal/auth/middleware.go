package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"volunteer-backend/internal/engine"
	"volunteer-backend/internal/instrument"
	"volunteer-backend/internal/metadata"
)

// AuthMiddleware validates the Bearer token, stores the caller under the
// "user" local and tags the request's trace context with the caller's id.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scheme, token, ok := strings.Cut(c.Get("Authorization"), " ")
		if scheme == "" {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(strings.TrimSpace(token), secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		user := claims.User()
		c.Locals("user", user)
		c.SetUserContext(instrument.WithUserID(c.UserContext(), user.ID))

		return c.Next()
	}
}

// RequireAdmin rejects callers without the admin role. It must run after
// AuthMiddleware.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !user.IsAdmin() {
			return engine.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}
