package middleware

import (
	"crypto/subtle"
	"strings"

	"prompt-guess-game/logger"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware validates the service token the gateway attaches to
// every request. Paths listed in exempt (e.g. health checks) skip the check.
func GatewayAuthMiddleware(expectedToken string, exempt ...string) fiber.Handler {
	log := logger.Component("gateway_auth")
	skip := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		if skip[c.Path()] {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Warn().Str("path", c.Path()).Msg("🚫 missing Authorization header")
			return errorResponse(c, fiber.StatusUnauthorized, "GATEWAY_TOKEN_MISSING", "gateway authentication token missing")
		}

		// Accept "Bearer <token>" or the raw token.
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Warn().Str("path", c.Path()).Msg("❌ invalid gateway token")
			return errorResponse(c, fiber.StatusUnauthorized, "GATEWAY_TOKEN_INVALID", "invalid gateway authentication token")
		}

		return c.Next()
	}
}

func errorResponse(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{"message": message, "code": code},
	})
}
