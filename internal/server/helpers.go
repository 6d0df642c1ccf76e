package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"beacon/internal/models"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil after seeing it.
var errResponseWritten = errors.New("response already written")

// currentUserID returns the authenticated user id placed in locals by the
// auth middleware. On failure it writes a 401 and returns the sentinel.
func (s *Server) currentUserID(c *fiber.Ctx) (string, error) {
	userID, ok := c.Locals("userID").(string)
	if !ok || userID == "" {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("authentication required"))
		return "", errResponseWritten
	}
	return userID, nil
}

// requireParam returns a non-empty route parameter. On failure it writes a
// 400 and returns the sentinel.
func (s *Server) requireParam(c *fiber.Ctx, name string) (string, error) {
	value := c.Params(name)
	if value == "" {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("missing "+name+" parameter"))
		return "", errResponseWritten
	}
	return value, nil
}

// fail writes the error with its mapped status code.
func fail(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.HTTPStatus(err), err)
}
