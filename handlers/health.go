package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger checks a dependency; *sql.DB's PingContext fits.
type Pinger func(ctx context.Context) error

// StreamCounter reports how many live event streams are open.
type StreamCounter interface {
	Subscribers() int
}

func SetupHealthRoutes(app *fiber.App, db Pinger, scheduler Rotator, streams StreamCounter) {
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status, dbStatus := fiber.StatusOK, "ok"
		if err := db(ctx); err != nil {
			httpLog.Warn().Err(err).Msg("health check: database unreachable")
			status, dbStatus = fiber.StatusServiceUnavailable, "unreachable"
		}
		body := fiber.Map{
			"database":          dbStatus,
			"scheduler_running": scheduler.Running(),
			"next_rotation":     scheduler.NextRotationTime(),
		}
		if streams != nil {
			body["event_streams"] = streams.Subscribers()
		}
		return c.Status(status).JSON(body)
	})
}
