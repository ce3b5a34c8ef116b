package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
)

// StatusFromError maps the domain error taxonomy onto HTTP statuses.
// 502 for upstream failures matters: providers retry webhooks on 5xx,
// so a flaky gateway never silently acknowledges an event.
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrUntrusted):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrStateConflict):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	return c.Status(StatusFromError(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}
