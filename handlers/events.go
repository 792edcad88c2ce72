package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"prompt-guess-game/middleware"
	"prompt-guess-game/notify"

	"github.com/gofiber/fiber/v2"
)

type EventHandler struct {
	Hub       *notify.Hub
	KeepAlive time.Duration
}

func SetupEventRoutes(app *fiber.App, h *EventHandler) {
	app.Get("/s/rounds/events", h.Stream)
}

// Stream pushes game events to the caller as server-sent events. Rotations go
// to everyone; scored guesses only to the player who made them.
func (h *EventHandler) Stream(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	events, cancel := h.Hub.Subscribe(32)
	serverDone := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		_, _ = w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if !visibleTo(ev, userID) {
					continue
				}
				if err := writeEvent(w, ev); err != nil {
					// client disconnected
					return
				}
			case <-ticker.C:
				_, _ = w.WriteString(": keepalive\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case <-serverDone:
				return
			}
		}
	})

	return nil
}

func visibleTo(ev notify.Event, userID string) bool {
	if ev.Type == notify.EventGuessScored {
		return ev.UserID == userID
	}
	return true
}

func writeEvent(w *bufio.Writer, ev notify.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
		return err
	}
	return w.Flush()
}
