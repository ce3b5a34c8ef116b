package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-fulfillment/internal/transport/http/handler"
	"github.com/sakashimaa/go-fulfillment/internal/transport/http/middleware"
)

type Handlers struct {
	Inventory *handler.InventoryHandler
	Order     *handler.OrderHandler
	Webhook   *handler.WebhookHandler
	Shipment  *handler.ShipmentHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers, adminSecret string) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	inventory := app.Group("/inventory")
	inventory.Post("/adjust", h.Inventory.Adjust)
	inventory.Get("/:variantId", h.Inventory.GetStock)

	orders := app.Group("/orders")
	orders.Post("", h.Order.Create)
	orders.Get("/:id", h.Order.GetByID)
	orders.Put("/:id/status", middleware.NewAdminMiddleware(adminSecret), h.Order.UpdateStatus)

	app.Post("/payments/:provider/webhook", h.Webhook.Receive)

	shipments := app.Group("/shipments")
	shipments.Post("", h.Shipment.Create)
	shipments.Put("/:id/delivered", h.Shipment.MarkDelivered)
}
