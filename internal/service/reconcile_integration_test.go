package service_test

import (
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/internal/provider"
)

func (s *IntegrationTestSuite) checkoutOrder(cartID string, variantID int64) *domain.Order {
	s.seedStock(variantID, 10)
	s.seedCart(cartID, domain.CartItem{VariantID: variantID, Quantity: 1, UnitPrice: 900})

	order, _, err := s.Checkout.Checkout(s.Ctx, cartID, "")
	s.Require().NoError(err)

	return order
}

func (s *IntegrationTestSuite) outboxReceipts() int64 {
	var count int64
	err := s.DbPool.QueryRow(s.Ctx,
		`SELECT COUNT(*) FROM outbox WHERE event_type = 'PaymentReceipt'`).
		Scan(&count)
	s.Require().NoError(err)

	return count
}

func (s *IntegrationTestSuite) TestReconcile_PaymentCompletedExactlyOnce() {
	order := s.checkoutOrder("cart-pay-1", 1)

	s.Gateway.SetPayment(provider.Payment{
		ProviderPaymentID: "pay_abc",
		OrderID:           order.ID,
		Amount:            900,
		Method:            "card",
		Status:            provider.StatusCompleted,
	})

	event := &domain.PaymentStatusChangedEvent{ProviderPaymentID: "pay_abc"}

	completedNow, err := s.Reconcile.HandlePaymentStatus(s.Ctx, event)
	s.Require().NoError(err)
	s.Require().True(completedNow)

	// Redelivery of the same notification: no second completion.
	completedNow, err = s.Reconcile.HandlePaymentStatus(s.Ctx, event)
	s.Require().NoError(err)
	s.Require().False(completedNow)

	updated, err := s.Orders.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPaid, updated.Status)
	s.Require().NotNil(updated.PaymentID)

	s.Require().EqualValues(1, s.outboxReceipts())
}

func (s *IntegrationTestSuite) TestReconcile_PendingThenCompleted() {
	order := s.checkoutOrder("cart-pay-2", 1)

	s.Gateway.SetPayment(provider.Payment{
		ProviderPaymentID: "pay_def",
		OrderID:           order.ID,
		Amount:            900,
		Status:            "pending",
	})

	event := &domain.PaymentStatusChangedEvent{ProviderPaymentID: "pay_def"}

	completedNow, err := s.Reconcile.HandlePaymentStatus(s.Ctx, event)
	s.Require().NoError(err)
	s.Require().False(completedNow)

	unchanged, err := s.Orders.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPending, unchanged.Status)
	s.Require().Zero(s.outboxReceipts())

	// The provider later reports completion.
	s.Gateway.SetPayment(provider.Payment{
		ProviderPaymentID: "pay_def",
		OrderID:           order.ID,
		Amount:            900,
		Status:            provider.StatusCompleted,
	})

	completedNow, err = s.Reconcile.HandlePaymentStatus(s.Ctx, event)
	s.Require().NoError(err)
	s.Require().True(completedNow)
	s.Require().EqualValues(1, s.outboxReceipts())
}

func (s *IntegrationTestSuite) TestReconcile_ProviderDownNeverAcks() {
	order := s.checkoutOrder("cart-pay-3", 1)

	s.Gateway.SetPayment(provider.Payment{
		ProviderPaymentID: "pay_ghi",
		OrderID:           order.ID,
		Amount:            900,
		Status:            provider.StatusCompleted,
	})
	s.Gateway.SetDown(true)

	event := &domain.PaymentStatusChangedEvent{ProviderPaymentID: "pay_ghi"}

	_, err := s.Reconcile.HandlePaymentStatus(s.Ctx, event)
	s.Require().ErrorIs(err, domain.ErrUpstreamUnavailable)

	// Nothing was written; the provider will redeliver and the event
	// still completes the payment then.
	var payments int64
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM payments`).Scan(&payments))
	s.Require().Zero(payments)

	s.Gateway.SetDown(false)

	completedNow, err := s.Reconcile.HandlePaymentStatus(s.Ctx, event)
	s.Require().NoError(err)
	s.Require().True(completedNow)
}

func (s *IntegrationTestSuite) TestReconcile_RefundRecordedOnce() {
	order := s.checkoutOrder("cart-refund-1", 1)

	s.Gateway.SetPayment(provider.Payment{
		ProviderPaymentID: "pay_jkl",
		OrderID:           order.ID,
		Amount:            900,
		Status:            provider.StatusCompleted,
	})

	_, err := s.Reconcile.HandlePaymentStatus(s.Ctx, &domain.PaymentStatusChangedEvent{ProviderPaymentID: "pay_jkl"})
	s.Require().NoError(err)

	refund := &domain.RefundUpdatedEvent{
		RefundID:          "re_1",
		ProviderPaymentID: "pay_jkl",
		Status:            domain.RefundStatusCompleted,
		Amount:            900,
	}

	recorded, err := s.Reconcile.HandleRefund(s.Ctx, refund)
	s.Require().NoError(err)
	s.Require().True(recorded)

	recorded, err = s.Reconcile.HandleRefund(s.Ctx, refund)
	s.Require().NoError(err)
	s.Require().False(recorded)

	var refunds int64
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM payment_refunds`).Scan(&refunds))
	s.Require().EqualValues(1, refunds)
}

func (s *IntegrationTestSuite) TestReconcile_RefundForUnknownPayment() {
	refund := &domain.RefundUpdatedEvent{
		RefundID:          "re_2",
		ProviderPaymentID: "pay_missing",
		Status:            domain.RefundStatusCompleted,
	}

	_, err := s.Reconcile.HandleRefund(s.Ctx, refund)
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *IntegrationTestSuite) TestReconcile_MethodActivatedOnce() {
	event := &domain.MethodActivatedEvent{ProviderMethodID: "pm_1"}

	activated, err := s.Reconcile.HandleMethodActivated(s.Ctx, event)
	s.Require().NoError(err)
	s.Require().True(activated)

	activated, err = s.Reconcile.HandleMethodActivated(s.Ctx, event)
	s.Require().NoError(err)
	s.Require().False(activated)
}

func (s *IntegrationTestSuite) TestReconcile_CompletionAfterShipKeepsStatus() {
	order := s.checkoutOrder("cart-late-1", 1)

	// The operator ships before the payment webhook lands; pending is
	// allowed to go straight to shipped.
	_, err := s.Shipments.ShipOrder(s.Ctx, order.ID, "DHL", "TRK-1")
	s.Require().NoError(err)

	s.Gateway.SetPayment(provider.Payment{
		ProviderPaymentID: "pay_late",
		OrderID:           order.ID,
		Amount:            900,
		Status:            provider.StatusCompleted,
	})

	completedNow, err := s.Reconcile.HandlePaymentStatus(s.Ctx, &domain.PaymentStatusChangedEvent{ProviderPaymentID: "pay_late"})
	s.Require().NoError(err)
	s.Require().True(completedNow)

	// The payment completed but the order stays shipped.
	updated, err := s.Orders.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusShipped, updated.Status)
	s.Require().EqualValues(1, s.outboxReceipts())
}
