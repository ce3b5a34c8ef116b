package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-fulfillment/internal/service"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	"github.com/sakashimaa/go-fulfillment/pkg/utils"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	service  service.InventoryService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewInventoryHandler(service service.InventoryService, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

type adjustRequest struct {
	VariantID int64  `json:"variant_id" validate:"required,gt=0"`
	Delta     int64  `json:"delta" validate:"required"`
	Reason    string `json:"reason"`
}

func (h *InventoryHandler) Adjust(c *fiber.Ctx) error {
	input := new(adjustRequest)

	if err := c.BodyParser(input); err != nil {
		h.logger.Warn(
			"failed to parse body in adjust",
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

	key := c.Get("Idempotency-Key")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Idempotency-Key header is required",
		})
	}

	result, err := h.service.Adjust(c.UserContext(), input.VariantID, input.Delta, key, input.Reason)
	if err != nil {
		mylogger.Warn(
			c.UserContext(),
			h.logger,
			"stock adjustment failed",
			zap.Int64("variant_id", input.VariantID),
			zap.Error(err),
		)

		return respondError(c, err)
	}

	status := fiber.StatusCreated
	if !result.Applied {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(fiber.Map{
		"variant_id":      result.Stock.VariantID,
		"stock":           result.Stock.Quantity,
		"applied":         result.Applied,
		"idempotency_key": key,
	})
}

func (h *InventoryHandler) GetStock(c *fiber.Ctx) error {
	variantID, err := c.ParamsInt("variantId")
	if err != nil || variantID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid variant id",
		})
	}

	stock, err := h.service.GetStock(c.UserContext(), int64(variantID))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(stock)
}
