package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/internal/service"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	"go.uber.org/zap"
)

type OrderHandler struct {
	checkout service.CheckoutService
	orders   service.OrderService
	logger   *zap.Logger
}

func NewOrderHandler(checkout service.CheckoutService, orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		checkout: checkout,
		orders:   orders,
		logger:   logger,
	}
}

// Create converts a cart into an order. Retries with the same cart or the
// same Idempotency-Key come back 200 with the original order.
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	cartID := c.Query("cartId")
	if cartID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cartId query parameter is required",
		})
	}

	clientKey := c.Get("Idempotency-Key")

	order, replayed, err := h.checkout.Checkout(c.UserContext(), cartID, clientKey)
	if err != nil {
		mylogger.Warn(
			c.UserContext(),
			h.logger,
			"checkout failed",
			zap.String("cart_id", cartID),
			zap.Error(err),
		)

		return respondError(c, err)
	}

	status := fiber.StatusCreated
	if replayed {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(order)
}

func (h *OrderHandler) GetByID(c *fiber.Ctx) error {
	orderID, err := c.ParamsInt("id")
	if err != nil || orderID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	order, err := h.orders.GetOrder(c.UserContext(), int64(orderID))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(order)
}

// UpdateStatus is the administrative override. The state machine still
// applies: an illegal edge comes back 409 even for an operator.
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	orderID, err := c.ParamsInt("id")
	if err != nil || orderID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	target, err := domain.ParseOrderStatus(c.Query("status"))
	if err != nil {
		return respondError(c, err)
	}

	if _, err := h.orders.Transition(c.UserContext(), int64(orderID), target); err != nil {
		mylogger.Warn(
			c.UserContext(),
			h.logger,
			"status override failed",
			zap.Int("order_id", orderID),
			zap.String("target", string(target)),
			zap.Error(err),
		)

		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
