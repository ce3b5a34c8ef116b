package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-fulfillment/internal/service"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	"github.com/sakashimaa/go-fulfillment/pkg/utils"
	"go.uber.org/zap"
)

type ShipmentHandler struct {
	service  service.ShipmentService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewShipmentHandler(service service.ShipmentService, logger *zap.Logger) *ShipmentHandler {
	return &ShipmentHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

type createShipmentRequest struct {
	OrderID        int64  `json:"order_id" validate:"required,gt=0"`
	Carrier        string `json:"carrier" validate:"required"`
	TrackingNumber string `json:"tracking_number" validate:"required"`
}

func (h *ShipmentHandler) Create(c *fiber.Ctx) error {
	input := new(createShipmentRequest)

	if err := c.BodyParser(input); err != nil {
		h.logger.Warn(
			"failed to parse body in create shipment",
			zap.Error(err),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	shipment, err := h.service.ShipOrder(c.UserContext(), input.OrderID, input.Carrier, input.TrackingNumber)
	if err != nil {
		mylogger.Warn(
			c.UserContext(),
			h.logger,
			"ship order failed",
			zap.Int64("order_id", input.OrderID),
			zap.Error(err),
		)

		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(shipment)
}

func (h *ShipmentHandler) MarkDelivered(c *fiber.Ctx) error {
	shipmentID, err := c.ParamsInt("id")
	if err != nil || shipmentID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid shipment id",
		})
	}

	result, err := h.service.MarkDelivered(c.UserContext(), int64(shipmentID))
	if err != nil {
		mylogger.Warn(
			c.UserContext(),
			h.logger,
			"mark delivered failed",
			zap.Int("shipment_id", shipmentID),
			zap.Error(err),
		)

		return respondError(c, err)
	}

	mylogger.Info(
		c.UserContext(),
		h.logger,
		"shipment delivered",
		zap.Int64("order_id", result.OrderID),
	)

	return c.SendStatus(fiber.StatusNoContent)
}
