package handlers

import (
	"errors"

	"prompt-guess-game/logger"
	"prompt-guess-game/services"

	"github.com/gofiber/fiber/v2"
)

var httpLog = logger.Component("http")

// statusByCode overrides the kind-based status for specific codes.
var statusByCode = map[string]int{
	services.ErrRoundNotFound.Code:     fiber.StatusNotFound,
	services.ErrRoundNotActive.Code:    fiber.StatusBadRequest,
	services.ErrDuplicateGuess.Code:    fiber.StatusConflict,
	services.ErrInvalidTransition.Code: fiber.StatusConflict,
	services.ErrInvalidGuess.Code:      fiber.StatusBadRequest,
}

var statusByKind = map[services.ErrorKind]int{
	services.KindValidation: fiber.StatusBadRequest,
	services.KindNotFound:   fiber.StatusNotFound,
	services.KindConflict:   fiber.StatusConflict,
	services.KindDependency: fiber.StatusBadGateway,
}

// respondError writes {"error":{"message","code"}}. Unkinded errors become
// a generic 500 and are logged with their cause.
func respondError(c *fiber.Ctx, err error) error {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		httpLog.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{"message": "internal server error", "code": "INTERNAL"},
		})
	}

	status, ok := statusByCode[svcErr.Code]
	if !ok {
		status, ok = statusByKind[svcErr.Kind]
	}
	if !ok {
		status = fiber.StatusInternalServerError
	}
	if status >= 500 {
		httpLog.Error().Err(err).Str("path", c.Path()).Str("code", svcErr.Code).Msg("request failed")
	}

	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{"message": svcErr.Message, "code": svcErr.Code},
	})
}
