package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/internal/metrics"
	"github.com/sakashimaa/go-fulfillment/internal/security"
	"github.com/sakashimaa/go-fulfillment/internal/service"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	verifier  *security.Verifier
	reconcile service.ReconcileService
	logger    *zap.Logger
}

func NewWebhookHandler(verifier *security.Verifier, reconcile service.ReconcileService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:  verifier,
		reconcile: reconcile,
		logger:    logger,
	}
}

// Receive ingests one provider notification. Trust runs before any
// parsing; an untrusted caller learns nothing about the body handling.
// Upstream failures come back 5xx so the provider redelivers.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	headers := make(map[string]string)
	c.Request().Header.VisitAll(func(k, v []byte) {
		headers[string(k)] = string(v)
	})

	if !h.verifier.IsTrusted(headers, c.Context().RemoteAddr().String()) {
		mylogger.Warn(
			c.UserContext(),
			h.logger,
			"webhook rejected",
			zap.String("provider", c.Params("provider")),
			zap.String("remote", c.Context().RemoteAddr().String()),
		)

		return respondError(c, domain.ErrUntrusted)
	}

	event, err := domain.ParseWebhookEvent(c.Body())
	if err != nil {
		return respondError(c, err)
	}

	if err := h.reconcile.HandleEvent(c.UserContext(), event); err != nil {
		mylogger.Warn(
			c.UserContext(),
			h.logger,
			"webhook processing failed",
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)

		return respondError(c, err)
	}

	metrics.WebhookEventsProcessed.WithLabelValues(string(event.Type)).Inc()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "ok",
	})
}
