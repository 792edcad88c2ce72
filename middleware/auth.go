package middleware

import (
	"strings"

	"prompt-guess-game/logger"

	"github.com/gofiber/fiber/v2"
)

const (
	LocalUserID    = "user_id"
	LocalUserRoles = "user_roles"
)

// UserContextMiddleware extracts the user identity and roles set by the
// gateway. Routes under /s/ require a user id; public routes may carry one.
func UserContextMiddleware() fiber.Handler {
	log := logger.Component("user_ctx")

	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		rolesStr := c.Get("X-User-Roles")

		path := c.Path()
		if strings.HasPrefix(path, "/s/") && userID == "" {
			log.Warn().Str("path", path).Msg("X-User-ID required but missing on secured route")
			return errorResponse(c, fiber.StatusUnauthorized, "USER_CONTEXT_MISSING",
				"missing X-User-ID, request must come through gateway with auth context")
		}

		var roles []string
		for _, r := range strings.Split(rolesStr, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUserRoles, roles)

		log.Debug().Str("user_id", userID).Strs("roles", roles).Str("path", path).Msg("user context")
		return c.Next()
	}
}

// RequireRole rejects requests whose gateway roles do not include role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals(LocalUserRoles).([]string)
		for _, r := range roles {
			if strings.EqualFold(r, role) {
				return c.Next()
			}
		}
		return errorResponse(c, fiber.StatusForbidden, "FORBIDDEN", role+" role required")
	}
}

// UserID returns the caller's id, or "" on public routes without one.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
