package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-fulfillment/internal/cart"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/internal/metrics"
	"github.com/sakashimaa/go-fulfillment/internal/repository"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CheckoutService interface {
	Checkout(ctx context.Context, cartID, clientKey string) (*domain.Order, bool, error)
}

type checkoutService struct {
	pool         *pgxpool.Pool
	carts        cart.Store
	idemRepo     repository.IdempotencyRepository
	checkoutRepo repository.CheckoutRepository
	orderRepo    repository.OrderRepository
	inventory    InventoryService
	logger       *zap.Logger
	tracer       trace.Tracer
}

func NewCheckoutService(
	pool *pgxpool.Pool,
	carts cart.Store,
	idemRepo repository.IdempotencyRepository,
	checkoutRepo repository.CheckoutRepository,
	orderRepo repository.OrderRepository,
	inventory InventoryService,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutService{
		pool:         pool,
		carts:        carts,
		idemRepo:     idemRepo,
		checkoutRepo: checkoutRepo,
		orderRepo:    orderRepo,
		inventory:    inventory,
		logger:       logger,
		tracer:       otel.Tracer("service/checkout_service"),
	}
}

// Checkout converts a cart into a pending order. Everything runs in one
// transaction: attempt claim, per-line stock decrements, order write.
// A failure anywhere rolls back entirely, so no stock decrement survives
// without its order. The returned bool reports a replayed attempt.
func (s *checkoutService) Checkout(ctx context.Context, cartID, clientKey string) (*domain.Order, bool, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.Checkout")
	defer span.End()

	span.SetAttributes(
		attribute.String("cart_id", cartID),
	)

	loaded, err := s.carts.Get(ctx, cartID)
	if err != nil {
		// A finished checkout clears the cart (or TTL reaps it), so a
		// retry of a successful attempt finds no cart. Replay from the
		// recorded attempt before treating the cart as truly missing.
		if errors.Is(err, domain.ErrNotFound) {
			if order, ok, replayErr := s.replayFinishedAttempt(ctx, cartID, clientKey); replayErr != nil {
				return nil, false, replayErr
			} else if ok {
				return order, true, nil
			}
		}

		return nil, false, err
	}

	if len(loaded.Items) == 0 {
		return nil, false, fmt.Errorf("cart %q is empty: %w", cartID, domain.ErrValidation)
	}
	seen := make(map[int64]struct{}, len(loaded.Items))
	for _, item := range loaded.Items {
		if item.Quantity < 1 {
			return nil, false, fmt.Errorf("cart line for variant %d has non-positive quantity: %w",
				item.VariantID, domain.ErrValidation)
		}
		if _, dup := seen[item.VariantID]; dup {
			return nil, false, fmt.Errorf("cart has duplicate lines for variant %d: %w",
				item.VariantID, domain.ErrValidation)
		}
		seen[item.VariantID] = struct{}{}
	}

	baseKey := CheckoutKey(cartID, clientKey)
	fingerprint := CartFingerprint(loaded)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to begin transaction",
			zap.Error(err),
		)

		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	created, existing, err := s.idemRepo.Reserve(ctx, tx, baseKey, fingerprint)
	if err != nil {
		return nil, false, err
	}

	if !created {
		if existing != fingerprint {
			mylogger.Warn(
				ctx,
				s.logger,
				"Checkout key reused with different cart contents",
				zap.String("idempotency_key", baseKey),
			)

			return nil, false, repository.ErrKeyReused
		}

		attempt, err := s.checkoutRepo.GetAttempt(ctx, tx, baseKey)
		if err != nil {
			return nil, false, err
		}
		if attempt == nil || attempt.OrderID == nil {
			return nil, false, fmt.Errorf("checkout attempt %q has no order yet: %w",
				baseKey, domain.ErrStateConflict)
		}

		order, err := s.orderRepo.GetByID(ctx, *attempt.OrderID)
		if err != nil {
			return nil, false, err
		}

		mylogger.Info(
			ctx,
			s.logger,
			"Checkout replayed",
			zap.String("cart_id", cartID),
			zap.Int64("order_id", order.ID),
		)

		return order, true, nil
	}

	if err := s.checkoutRepo.CreateAttempt(ctx, tx, &domain.CheckoutAttempt{
		IdempotencyKey: baseKey,
		RequestHash:    fingerprint,
	}); err != nil {
		return nil, false, err
	}

	// Fixed variant order avoids lock-ordering deadlocks between
	// concurrent checkouts touching overlapping variants.
	items := loaded.SortedItems()

	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		lineKey := fmt.Sprintf("%s:%d", baseKey, item.VariantID)

		if _, err := s.inventory.AdjustTx(ctx, tx, item.VariantID, -item.Quantity, lineKey, domain.AdjustReasonOrder); err != nil {
			mylogger.Warn(
				ctx,
				s.logger,
				"Checkout aborted on stock adjustment",
				zap.String("cart_id", cartID),
				zap.Int64("variant_id", item.VariantID),
				zap.Error(err),
			)

			return nil, false, err
		}

		lines = append(lines, domain.OrderLine{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	order := &domain.Order{
		CustomerID:    loaded.CustomerID,
		CustomerEmail: loaded.CustomerEmail,
		Status:        domain.OrderStatusPending,
		Currency:      "USD",
		Lines:         lines,
	}
	order.CalculateTotal()

	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, false, err
	}

	if err := s.checkoutRepo.SetAttemptOrder(ctx, tx, baseKey, order.ID); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to commit checkout transaction",
			zap.Error(err),
		)

		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.CheckoutsCompleted.Inc()

	// The cart is gone logically; deleting the redis key is best-effort.
	if err := s.carts.Delete(ctx, cartID); err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to clear cart after checkout, TTL will reap it",
			zap.String("cart_id", cartID),
			zap.Error(err),
		)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Checkout completed",
		zap.String("cart_id", cartID),
		zap.Int64("order_id", order.ID),
		zap.Int64("total_amount", order.TotalAmount),
	)

	return order, false, nil
}

// replayFinishedAttempt looks up the attempt keyed by this cart and
// client key and returns its order. The second return reports whether a
// finished attempt was found. The cart contents are gone at this point,
// so the fingerprint cannot be re-checked; the key alone identifies the
// original request.
func (s *checkoutService) replayFinishedAttempt(ctx context.Context, cartID, clientKey string) (*domain.Order, bool, error) {
	baseKey := CheckoutKey(cartID, clientKey)

	attempt, err := s.checkoutRepo.FindAttempt(ctx, baseKey)
	if err != nil {
		return nil, false, err
	}
	if attempt == nil || attempt.OrderID == nil {
		return nil, false, nil
	}

	order, err := s.orderRepo.GetByID(ctx, *attempt.OrderID)
	if err != nil {
		return nil, false, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Checkout replayed after cart expiry",
		zap.String("cart_id", cartID),
		zap.Int64("order_id", order.ID),
	)

	return order, true, nil
}

// CheckoutKey picks the base idempotency key for an attempt: the
// client-supplied key when present, otherwise one derived from the cart
// id so plain retries of the same cart stay idempotent.
func CheckoutKey(cartID, clientKey string) string {
	if trimmed := strings.TrimSpace(clientKey); trimmed != "" {
		return trimmed
	}

	return "checkout:" + cartID
}

// CartFingerprint hashes the cart contents so a reused key with a
// different logical request is detected as a conflict.
func CartFingerprint(c *domain.Cart) string {
	h := sha256.New()

	fmt.Fprintf(h, "%s|%d", c.ID, c.CustomerID)
	for _, item := range c.SortedItems() {
		fmt.Fprintf(h, "|%d:%d:%d", item.VariantID, item.Quantity, item.UnitPrice)
	}

	return hex.EncodeToString(h.Sum(nil))
}
