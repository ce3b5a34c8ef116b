package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sakashimaa/go-fulfillment/internal/cart"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/internal/provider"
	"github.com/sakashimaa/go-fulfillment/internal/repository"
	"github.com/sakashimaa/go-fulfillment/internal/service"
	outboxRepository "github.com/sakashimaa/go-fulfillment/pkg/outbox/repository"
	"github.com/sakashimaa/go-fulfillment/pkg/testsuite"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type IntegrationTestSuite struct {
	testsuite.BaseSuite

	Carts     *memoryCartStore
	Gateway   *fakeGateway
	Inventory service.InventoryService
	Checkout  service.CheckoutService
	Orders    service.OrderService
	Reconcile service.ReconcileService
	Shipments service.ShipmentService
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../migrations", false)
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *IntegrationTestSuite) SetupTest() {
	s.BaseSuite.TruncateTable("variant_stock")
	s.BaseSuite.TruncateTable("inventory_ledger")
	s.BaseSuite.TruncateTable("idempotency_keys")
	s.BaseSuite.TruncateTable("checkout_attempts")
	s.BaseSuite.TruncateTable("orders")
	s.BaseSuite.TruncateTable("payments")
	s.BaseSuite.TruncateTable("payment_refunds")
	s.BaseSuite.TruncateTable("payment_methods")
	s.BaseSuite.TruncateTable("shipments")
	s.BaseSuite.TruncateTable("outbox")
	s.BaseSuite.TruncateTable("processed_events")

	logger := zap.NewNop()

	s.Carts = newMemoryCartStore()
	s.Gateway = newFakeGateway()

	idemRepo := repository.NewIdempotencyRepository(logger)
	inventoryRepo := repository.NewInventoryRepository(s.DbPool, logger)
	checkoutRepo := repository.NewCheckoutRepository(s.DbPool, logger)
	orderRepo := repository.NewOrderRepository(s.DbPool, logger)
	paymentRepo := repository.NewPaymentRepository(s.DbPool, logger)
	shipmentRepo := repository.NewShipmentRepository(s.DbPool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(s.DbPool, logger)

	s.Inventory = service.NewInventoryService(s.DbPool, inventoryRepo, logger)
	s.Checkout = service.NewCheckoutService(s.DbPool, s.Carts, idemRepo, checkoutRepo, orderRepo, s.Inventory, logger)
	s.Orders = service.NewOrderService(s.DbPool, orderRepo, logger)
	s.Reconcile = service.NewReconcileService(s.DbPool, s.Gateway, paymentRepo, orderRepo, outboxRepo, "notification_events", logger)
	s.Shipments = service.NewShipmentService(s.DbPool, shipmentRepo, orderRepo, logger)
}

func (s *IntegrationTestSuite) seedStock(variantID, quantity int64) {
	query := `
		INSERT INTO variant_stock (variant_id, quantity)
		VALUES ($1, $2)
		ON CONFLICT (variant_id) DO UPDATE SET quantity = $2
	`

	_, err := s.DbPool.Exec(s.Ctx, query, variantID, quantity)
	s.Require().NoError(err)
}

func (s *IntegrationTestSuite) stockOf(variantID int64) int64 {
	var quantity int64
	err := s.DbPool.QueryRow(s.Ctx,
		`SELECT quantity FROM variant_stock WHERE variant_id = $1`, variantID).
		Scan(&quantity)
	s.Require().NoError(err)

	return quantity
}

func (s *IntegrationTestSuite) ledgerCount(variantID int64) int64 {
	var count int64
	err := s.DbPool.QueryRow(s.Ctx,
		`SELECT COUNT(*) FROM inventory_ledger WHERE variant_id = $1`, variantID).
		Scan(&count)
	s.Require().NoError(err)

	return count
}

func (s *IntegrationTestSuite) seedCart(cartID string, items ...domain.CartItem) *domain.Cart {
	c := &domain.Cart{
		ID:            cartID,
		CustomerID:    42,
		CustomerEmail: "customer@example.com",
		Items:         items,
	}
	s.Require().NoError(s.Carts.Save(s.Ctx, c))

	return c
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

// memoryCartStore keeps carts in a map so service tests do not need a
// redis container.
type memoryCartStore struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

func newMemoryCartStore() *memoryCartStore {
	return &memoryCartStore{carts: make(map[string]*domain.Cart)}
}

func (m *memoryCartStore) Get(_ context.Context, cartID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.carts[cartID]
	if !ok {
		return nil, fmt.Errorf("cart %q: %w", cartID, domain.ErrNotFound)
	}

	copied := *c
	return &copied, nil
}

func (m *memoryCartStore) Save(_ context.Context, c *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *c
	m.carts[c.ID] = &copied
	return nil
}

func (m *memoryCartStore) Delete(_ context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.carts, cartID)
	return nil
}

var _ cart.Store = (*memoryCartStore)(nil)

// fakeGateway serves canned provider payments and can be switched into a
// failing mode to exercise the upstream-unavailable path.
type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]provider.Payment
	down     bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: make(map[string]provider.Payment)}
}

func (g *fakeGateway) SetPayment(p provider.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.payments[p.ProviderPaymentID] = p
}

func (g *fakeGateway) SetDown(down bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.down = down
}

func (g *fakeGateway) FetchPayment(_ context.Context, providerPaymentID string) (*provider.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.down {
		return nil, fmt.Errorf("provider unreachable: %w", domain.ErrUpstreamUnavailable)
	}

	p, ok := g.payments[providerPaymentID]
	if !ok {
		return nil, fmt.Errorf("payment %q: %w", providerPaymentID, domain.ErrNotFound)
	}

	copied := p
	return &copied, nil
}

var _ provider.Gateway = (*fakeGateway)(nil)
