package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("secret", "/health"))
	app.Use(UserContextMiddleware())
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/public", func(c *fiber.Ctx) error { return c.SendString("user=" + UserID(c)) })
	app.Get("/s/me", func(c *fiber.Ctx) error { return c.SendString(UserID(c)) })
	app.Get("/s/admin/thing", RequireRole("admin"), func(c *fiber.Ctx) error { return c.SendString("admin") })
	return app
}

func do(t *testing.T, app *fiber.App, path string, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestGatewayAuth(t *testing.T) {
	app := newApp()

	status, _ := do(t, app, "/public", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := do(t, app, "/public", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Contains(t, body, "GATEWAY_TOKEN_INVALID")

	status, _ = do(t, app, "/public", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = do(t, app, "/public", map[string]string{"Authorization": "secret"})
	assert.Equal(t, fiber.StatusOK, status, "raw token accepted")

	status, _ = do(t, app, "/health", nil)
	assert.Equal(t, fiber.StatusOK, status, "health is exempt")
}

func TestUserContext(t *testing.T) {
	app := newApp()
	auth := map[string]string{"Authorization": "Bearer secret"}

	status, body := do(t, app, "/s/me", auth)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Contains(t, body, "USER_CONTEXT_MISSING")

	status, body = do(t, app, "/s/me", map[string]string{"Authorization": "Bearer secret", "X-User-ID": "u1"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "u1", body)

	status, body = do(t, app, "/public", map[string]string{"Authorization": "Bearer secret", "X-User-ID": "u2"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "user=u2", body)
}

func TestRequireRole(t *testing.T) {
	app := newApp()

	status, _ := do(t, app, "/s/admin/thing", map[string]string{"Authorization": "Bearer secret", "X-User-ID": "u1", "X-User-Roles": "player"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := do(t, app, "/s/admin/thing", map[string]string{"Authorization": "Bearer secret", "X-User-ID": "u1", "X-User-Roles": "player, Admin"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "admin", body)
}
