package service_test

import (
	"sync"

	"github.com/sakashimaa/go-fulfillment/internal/domain"
)

func (s *IntegrationTestSuite) TestCheckout_CreatesPendingOrder() {
	s.seedStock(1, 10)
	s.seedStock(2, 5)
	s.seedCart("cart-1",
		domain.CartItem{VariantID: 2, Quantity: 1, UnitPrice: 2500},
		domain.CartItem{VariantID: 1, Quantity: 3, UnitPrice: 1000},
	)

	order, replayed, err := s.Checkout.Checkout(s.Ctx, "cart-1", "")
	s.Require().NoError(err)
	s.Require().False(replayed)
	s.Require().Equal(domain.OrderStatusPending, order.Status)
	s.Require().EqualValues(5500, order.TotalAmount)
	s.Require().Len(order.Lines, 2)

	s.Require().EqualValues(7, s.stockOf(1))
	s.Require().EqualValues(4, s.stockOf(2))

	// Cart is consumed on success.
	_, err = s.Carts.Get(s.Ctx, "cart-1")
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *IntegrationTestSuite) TestCheckout_RetryReturnsSameOrder() {
	s.seedStock(1, 10)
	s.seedCart("cart-2", domain.CartItem{VariantID: 1, Quantity: 2, UnitPrice: 500})

	first, replayed, err := s.Checkout.Checkout(s.Ctx, "cart-2", "client-key-1")
	s.Require().NoError(err)
	s.Require().False(replayed)

	// Client retries after a lost response. The cart is gone by now, so
	// the replay must come from the recorded attempt alone.
	second, replayed, err := s.Checkout.Checkout(s.Ctx, "cart-2", "client-key-1")
	s.Require().NoError(err)
	s.Require().True(replayed)
	s.Require().Equal(first.ID, second.ID)

	// Exactly one decrement happened across both calls.
	s.Require().EqualValues(8, s.stockOf(1))
	s.Require().EqualValues(1, s.ledgerCount(1))
}

func (s *IntegrationTestSuite) TestCheckout_RetryAfterCartExpiry() {
	s.seedStock(1, 10)
	s.seedCart("cart-2b", domain.CartItem{VariantID: 1, Quantity: 2, UnitPrice: 500})

	first, replayed, err := s.Checkout.Checkout(s.Ctx, "cart-2b", "")
	s.Require().NoError(err)
	s.Require().False(replayed)

	// No client key this time: the derived key must still find the
	// attempt after the cart TTL would have reaped it.
	second, replayed, err := s.Checkout.Checkout(s.Ctx, "cart-2b", "")
	s.Require().NoError(err)
	s.Require().True(replayed)
	s.Require().Equal(first.ID, second.ID)

	s.Require().EqualValues(8, s.stockOf(1))
}

func (s *IntegrationTestSuite) TestCheckout_DuplicateVariantLinesRejected() {
	s.seedStock(5, 10)
	s.seedCart("cart-dup",
		domain.CartItem{VariantID: 5, Quantity: 1, UnitPrice: 700},
		domain.CartItem{VariantID: 5, Quantity: 1, UnitPrice: 700},
	)

	_, _, err := s.Checkout.Checkout(s.Ctx, "cart-dup", "")
	s.Require().ErrorIs(err, domain.ErrValidation)

	// Nothing moved: no order, no decrement, no ledger entry.
	s.Require().EqualValues(10, s.stockOf(5))
	s.Require().EqualValues(0, s.ledgerCount(5))

	var orders int64
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	s.Require().Zero(orders)
}

func (s *IntegrationTestSuite) TestCheckout_KeyReusedForDifferentCart() {
	s.seedStock(1, 10)
	s.seedCart("cart-3", domain.CartItem{VariantID: 1, Quantity: 1, UnitPrice: 100})

	_, _, err := s.Checkout.Checkout(s.Ctx, "cart-3", "client-key-2")
	s.Require().NoError(err)

	// Same key, different contents: conflict, not a silent replay.
	s.seedCart("cart-3", domain.CartItem{VariantID: 1, Quantity: 5, UnitPrice: 100})

	_, _, err = s.Checkout.Checkout(s.Ctx, "cart-3", "client-key-2")
	s.Require().ErrorIs(err, domain.ErrStateConflict)

	s.Require().EqualValues(9, s.stockOf(1))
}

func (s *IntegrationTestSuite) TestCheckout_InsufficientStockRollsBackEverything() {
	s.seedStock(1, 10)
	s.seedStock(2, 1)
	s.seedCart("cart-4",
		domain.CartItem{VariantID: 1, Quantity: 2, UnitPrice: 100},
		domain.CartItem{VariantID: 2, Quantity: 3, UnitPrice: 100},
	)

	_, _, err := s.Checkout.Checkout(s.Ctx, "cart-4", "")
	s.Require().ErrorIs(err, domain.ErrStateConflict)

	// The variant-1 decrement ran before variant 2 failed; the rollback
	// must cover it, along with the attempt claim and any order rows.
	s.Require().EqualValues(10, s.stockOf(1))
	s.Require().EqualValues(1, s.stockOf(2))

	var orders int64
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	s.Require().Zero(orders)

	var attempts int64
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM checkout_attempts`).Scan(&attempts))
	s.Require().Zero(attempts)
}

func (s *IntegrationTestSuite) TestCheckout_EmptyCartRejected() {
	s.seedCart("cart-5")

	_, _, err := s.Checkout.Checkout(s.Ctx, "cart-5", "")
	s.Require().ErrorIs(err, domain.ErrValidation)
}

func (s *IntegrationTestSuite) TestCheckout_MissingCart() {
	_, _, err := s.Checkout.Checkout(s.Ctx, "no-such-cart", "")
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *IntegrationTestSuite) TestCheckout_ConcurrentRetriesProduceOneOrder() {
	s.seedStock(1, 10)
	original := s.seedCart("cart-6", domain.CartItem{VariantID: 1, Quantity: 1, UnitPrice: 300})

	const attempts = 4

	ids := make([]int64, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			// Each goroutine sees its own copy of the cart, as concurrent
			// client retries would.
			_ = s.Carts.Save(s.Ctx, original)

			order, _, err := s.Checkout.Checkout(s.Ctx, "cart-6", "client-key-3")
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = order.ID
		}(i)
	}
	wg.Wait()

	var winner int64
	for i := 0; i < attempts; i++ {
		s.Require().NoError(errs[i])
		if winner == 0 {
			winner = ids[i]
		}
		s.Require().Equal(winner, ids[i])
	}

	s.Require().EqualValues(9, s.stockOf(1))
	s.Require().EqualValues(1, s.ledgerCount(1))
}

func (s *IntegrationTestSuite) TestCheckout_DisjointCartsProceedConcurrently() {
	s.seedStock(1, 5)
	s.seedStock(2, 5)
	s.seedCart("cart-a", domain.CartItem{VariantID: 1, Quantity: 1, UnitPrice: 100})
	s.seedCart("cart-b", domain.CartItem{VariantID: 2, Quantity: 1, UnitPrice: 100})

	var wg sync.WaitGroup
	errs := make([]error, 2)

	for i, cartID := range []string{"cart-a", "cart-b"} {
		wg.Add(1)
		go func(i int, cartID string) {
			defer wg.Done()

			_, _, err := s.Checkout.Checkout(s.Ctx, cartID, "")
			errs[i] = err
		}(i, cartID)
	}
	wg.Wait()

	s.Require().NoError(errs[0])
	s.Require().NoError(errs[1])
	s.Require().EqualValues(4, s.stockOf(1))
	s.Require().EqualValues(4, s.stockOf(2))
}
