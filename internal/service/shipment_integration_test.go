package service_test

import (
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/internal/provider"
)

func (s *IntegrationTestSuite) payOrder(order *domain.Order, providerPaymentID string) {
	s.Gateway.SetPayment(provider.Payment{
		ProviderPaymentID: providerPaymentID,
		OrderID:           order.ID,
		Amount:            order.TotalAmount,
		Status:            provider.StatusCompleted,
	})

	_, err := s.Reconcile.HandlePaymentStatus(s.Ctx, &domain.PaymentStatusChangedEvent{ProviderPaymentID: providerPaymentID})
	s.Require().NoError(err)
}

func (s *IntegrationTestSuite) TestShipment_FullLifecycle() {
	order := s.checkoutOrder("cart-ship-1", 1)
	s.payOrder(order, "pay_ship_1")

	shipment, err := s.Shipments.ShipOrder(s.Ctx, order.ID, "UPS", "TRK-100")
	s.Require().NoError(err)
	s.Require().NotZero(shipment.ID)

	shipped, err := s.Orders.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusShipped, shipped.Status)
	s.Require().NotNil(shipped.ShipmentID)

	result, err := s.Shipments.MarkDelivered(s.Ctx, shipment.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusShipped, result.PreviousStatus)
	s.Require().Equal(domain.OrderStatusDelivered, result.CurrentStatus)

	delivered, err := s.Orders.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusDelivered, delivered.Status)
}

func (s *IntegrationTestSuite) TestShipment_BlankCarrierRejected() {
	order := s.checkoutOrder("cart-ship-2", 1)

	_, err := s.Shipments.ShipOrder(s.Ctx, order.ID, "  ", "TRK-200")
	s.Require().ErrorIs(err, domain.ErrValidation)

	_, err = s.Shipments.ShipOrder(s.Ctx, order.ID, "UPS", "")
	s.Require().ErrorIs(err, domain.ErrValidation)
}

func (s *IntegrationTestSuite) TestShipment_DeliverTwiceConflicts() {
	order := s.checkoutOrder("cart-ship-3", 1)
	s.payOrder(order, "pay_ship_3")

	shipment, err := s.Shipments.ShipOrder(s.Ctx, order.ID, "UPS", "TRK-300")
	s.Require().NoError(err)

	_, err = s.Shipments.MarkDelivered(s.Ctx, shipment.ID)
	s.Require().NoError(err)

	_, err = s.Shipments.MarkDelivered(s.Ctx, shipment.ID)
	s.Require().ErrorIs(err, domain.ErrStateConflict)
}

func (s *IntegrationTestSuite) TestShipment_UnknownShipment() {
	_, err := s.Shipments.MarkDelivered(s.Ctx, 12345)
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *IntegrationTestSuite) TestShipment_ShipDeliveredOrderConflicts() {
	order := s.checkoutOrder("cart-ship-4", 1)
	s.payOrder(order, "pay_ship_4")

	shipment, err := s.Shipments.ShipOrder(s.Ctx, order.ID, "UPS", "TRK-400")
	s.Require().NoError(err)

	_, err = s.Shipments.MarkDelivered(s.Ctx, shipment.ID)
	s.Require().NoError(err)

	// delivered is terminal; shipping again must fail.
	_, err = s.Shipments.ShipOrder(s.Ctx, order.ID, "UPS", "TRK-401")
	s.Require().ErrorIs(err, domain.ErrStateConflict)
}

func (s *IntegrationTestSuite) TestOrderTransition_AdminOverride() {
	order := s.checkoutOrder("cart-admin-1", 1)

	// pending -> cancelled is a legal operator action.
	updated, err := s.Orders.Transition(s.Ctx, order.ID, domain.OrderStatusCancelled)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusCancelled, updated.Status)

	// cancelled is terminal, even for an operator.
	_, err = s.Orders.Transition(s.Ctx, order.ID, domain.OrderStatusPaid)
	s.Require().ErrorIs(err, domain.ErrStateConflict)
}

func (s *IntegrationTestSuite) TestOrderTransition_UnknownOrder() {
	_, err := s.Orders.Transition(s.Ctx, 99999, domain.OrderStatusPaid)
	s.Require().ErrorIs(err, domain.ErrNotFound)
}
