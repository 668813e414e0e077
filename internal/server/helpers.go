package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"gamelend/internal/middleware"
	"gamelend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

const handlerTimeout = 5 * time.Second

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "gameId" -> "game ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if prefix, ok := strings.CutSuffix(param, "Id"); ok {
		return strings.ToLower(prefix) + " ID"
	}
	return param
}

// parseBody decodes the JSON request body into dest. An empty body is
// accepted when optional is set. On failure it writes a 400 response and
// returns errResponseWritten.
func parseBody(c *fiber.Ctx, dest interface{}, optional bool) error {
	if optional && len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(dest); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

// requestContext returns the request-scoped context with a deadline and the
// caller resolved by the auth middleware.
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc, models.Identity) {
	ctx, cancel := context.WithTimeout(c.UserContext(), handlerTimeout)
	return ctx, cancel, middleware.IdentityFrom(c)
}

// respond writes err using its mapped status, or payload with status.
func respond(c *fiber.Ctx, status int, payload interface{}, err error) error {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.Status(fiber.StatusGatewayTimeout).JSON(models.ErrorResponse{
				Error: "Request timeout",
			})
		}
		return models.RespondWithAppError(c, err)
	}
	if payload == nil {
		return c.SendStatus(status)
	}
	return c.Status(status).JSON(payload)
}
