package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, orderID int64) (*domain.Order, error)
	TransitionStatus(ctx context.Context, tx pgx.Tx, orderID int64, target domain.OrderStatus) (domain.OrderStatus, error)
	SetPaymentID(ctx context.Context, tx pgx.Tx, orderID, paymentID int64) error
	SetShipmentID(ctx context.Context, tx pgx.Tx, orderID, shipmentID int64) error
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/order_repo"),
	}
}

func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("customer_id", order.CustomerID),
		attribute.Int("lines_count", len(order.Lines)),
	)

	queryOrder := `
		INSERT INTO orders (customer_id, customer_email, status, total_amount, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.CustomerID,
		order.CustomerEmail,
		string(order.Status),
		order.TotalAmount,
		order.Currency,
	).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order: %w", err)
	}

	queryLine := `
		INSERT INTO order_lines (order_id, variant_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID

		if err := tx.QueryRow(
			ctx,
			queryLine,
			order.ID,
			line.VariantID,
			line.Quantity,
			line.UnitPrice,
		).Scan(&line.ID); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to insert order line",
				zap.Int64("variant_id", line.VariantID),
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert order line: %w", err)
		}
	}

	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, orderID int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	query := `
		SELECT id, customer_id, customer_email, status, total_amount, currency, payment_id, shipment_id, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var order domain.Order
	err := r.pool.QueryRow(ctx, query, orderID).Scan(
		&order.ID,
		&order.CustomerID,
		&order.CustomerEmail,
		&order.Status,
		&order.TotalAmount,
		&order.Currency,
		&order.PaymentID,
		&order.ShipmentID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	linesQuery := `
		SELECT id, order_id, variant_id, quantity, unit_price
		FROM order_lines
		WHERE order_id = $1
		ORDER BY variant_id
	`

	rows, err := r.pool.Query(ctx, linesQuery, orderID)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.VariantID, &line.Quantity, &line.UnitPrice); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}

		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("order lines rows error: %w", err)
	}

	return &order, nil
}

// TransitionStatus applies one edge of the order state machine under a
// row lock. Illegal edges fail and leave the status untouched; the
// previous status is returned for the caller's audit trail.
func (r *orderRepo) TransitionStatus(ctx context.Context, tx pgx.Tx, orderID int64, target domain.OrderStatus) (domain.OrderStatus, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.TransitionStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("target_status", string(target)),
	)

	lockQuery := `
		SELECT status
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`

	var current domain.OrderStatus
	if err := tx.QueryRow(ctx, lockQuery, orderID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(
				ctx,
				r.logger,
				"Order not found",
				zap.Int64("order_id", orderID),
			)

			return "", ErrOrderNotFound
		}

		span.RecordError(err)

		return "", fmt.Errorf("failed to lock order: %w", err)
	}

	if !current.CanTransitionTo(target) {
		mylogger.Warn(
			ctx,
			r.logger,
			"Illegal order status transition",
			zap.Int64("order_id", orderID),
			zap.String("from", string(current)),
			zap.String("to", string(target)),
		)

		return current, fmt.Errorf("%s -> %s: %w", current, target, ErrIllegalTransition)
	}

	updateQuery := `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := tx.Exec(ctx, updateQuery, orderID, string(target)); err != nil {
		span.RecordError(err)

		return current, fmt.Errorf("failed to update order status: %w", err)
	}

	return current, nil
}

func (r *orderRepo) SetPaymentID(ctx context.Context, tx pgx.Tx, orderID, paymentID int64) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.SetPaymentID")
	defer span.End()

	query := `
		UPDATE orders
		SET payment_id = $2, updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query, orderID, paymentID)
	if err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to set order payment: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *orderRepo) SetShipmentID(ctx context.Context, tx pgx.Tx, orderID, shipmentID int64) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.SetShipmentID")
	defer span.End()

	query := `
		UPDATE orders
		SET shipment_id = $2, updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query, orderID, shipmentID)
	if err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to set order shipment: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}
