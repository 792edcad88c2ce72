package handlers

import (
	"context"
	"time"

	"prompt-guess-game/middleware"
	"prompt-guess-game/models"
	"prompt-guess-game/services"

	"github.com/gofiber/fiber/v2"
)

type RoundReader interface {
	ActiveRoundView(ctx context.Context, userID string) (*services.ActiveRoundView, error)
	GetActiveRound(ctx context.Context) (*models.Round, error)
	RoundHistory(ctx context.Context, limit int) ([]services.HistoryEntry, error)
	RoundDuration() time.Duration
}

type GuessScorer interface {
	ScoreAndSaveGuess(ctx context.Context, roundID, userID, guessText string) (*services.GuessResult, error)
	Leaderboard(ctx context.Context, roundID string, limit int) (*services.Leaderboard, error)
}

type Rotator interface {
	RotateRound(ctx context.Context) (*models.Round, error)
	NextRotationTime() *time.Time
	Running() bool
}

type RoundHandler struct {
	Rounds    RoundReader
	Scoring   GuessScorer
	Scheduler Rotator
}

func SetupRoundRoutes(app *fiber.App, h *RoundHandler) {
	// 🔓 Public routes, gateway auth only; X-User-ID is optional
	app.Get("/rounds/active", h.GetActiveRound)
	app.Get("/rounds/history", h.GetHistory)
	app.Get("/rounds/:id/leaderboard", h.GetLeaderboard)

	// 🔐 Secured routes, user context required
	secured := app.Group("/s")
	secured.Post("/rounds/guess", h.SubmitGuess)

	admin := secured.Group("/admin", middleware.RequireRole("admin"))
	admin.Post("/rotate", h.Rotate)
	admin.Get("/next-rotation", h.NextRotation)
}

func (h *RoundHandler) GetActiveRound(c *fiber.Ctx) error {
	view, err := h.Rounds.ActiveRoundView(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	if view == nil {
		return respondError(c, services.ErrRoundNotFound.With("no active round"))
	}
	return c.JSON(fiber.Map{
		"round":         view.Round,
		"guess_count":   view.GuessCount,
		"my_guess":      view.MyGuess,
		"next_rotation": h.Scheduler.NextRotationTime(),
	})
}

func (h *RoundHandler) GetHistory(c *fiber.Ctx) error {
	rounds, err := h.Rounds.RoundHistory(c.UserContext(), c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"rounds": rounds})
}

func (h *RoundHandler) GetLeaderboard(c *fiber.Ctx) error {
	board, err := h.Scoring.Leaderboard(c.UserContext(), c.Params("id"), c.QueryInt("limit", 10))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(board)
}

type guessRequest struct {
	RoundID string `json:"round_id"`
	Guess   string `json:"guess"`
}

func (h *RoundHandler) SubmitGuess(c *fiber.Ctx) error {
	var req guessRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, services.ErrInvalidGuess.With("invalid request body"))
	}

	roundID := req.RoundID
	if roundID == "" {
		active, err := h.Rounds.GetActiveRound(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		if active == nil {
			return respondError(c, services.ErrRoundNotFound.With("no active round"))
		}
		roundID = active.ID
	}

	result, err := h.Scoring.ScoreAndSaveGuess(c.UserContext(), roundID, middleware.UserID(c), req.Guess)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *RoundHandler) Rotate(c *fiber.Ctx) error {
	round, err := h.Scheduler.RotateRound(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"round":         round.Public(h.Rounds.RoundDuration()),
		"next_rotation": h.Scheduler.NextRotationTime(),
	})
}

func (h *RoundHandler) NextRotation(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"running":       h.Scheduler.Running(),
		"next_rotation": h.Scheduler.NextRotationTime(),
	})
}
