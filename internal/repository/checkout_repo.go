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

type CheckoutRepository interface {
	CreateAttempt(ctx context.Context, tx pgx.Tx, attempt *domain.CheckoutAttempt) error
	GetAttempt(ctx context.Context, tx pgx.Tx, key string) (*domain.CheckoutAttempt, error)
	FindAttempt(ctx context.Context, key string) (*domain.CheckoutAttempt, error)
	SetAttemptOrder(ctx context.Context, tx pgx.Tx, key string, orderID int64) error
}

type checkoutRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewCheckoutRepository(pool *pgxpool.Pool, logger *zap.Logger) CheckoutRepository {
	return &checkoutRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/checkout_repo"),
	}
}

func (r *checkoutRepo) CreateAttempt(ctx context.Context, tx pgx.Tx, attempt *domain.CheckoutAttempt) error {
	ctx, span := r.tracer.Start(ctx, "CheckoutRepository.CreateAttempt")
	defer span.End()

	span.SetAttributes(
		attribute.String("idempotency_key", attempt.IdempotencyKey),
	)

	query := `
		INSERT INTO checkout_attempts (idempotency_key, request_hash)
		VALUES ($1, $2)
		RETURNING created_at
	`

	if err := tx.QueryRow(ctx, query, attempt.IdempotencyKey, attempt.RequestHash).
		Scan(&attempt.CreatedAt); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert checkout attempt",
			zap.String("idempotency_key", attempt.IdempotencyKey),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert checkout attempt: %w", err)
	}

	return nil
}

func (r *checkoutRepo) GetAttempt(ctx context.Context, tx pgx.Tx, key string) (*domain.CheckoutAttempt, error) {
	ctx, span := r.tracer.Start(ctx, "CheckoutRepository.GetAttempt")
	defer span.End()

	query := `
		SELECT idempotency_key, request_hash, order_id, created_at
		FROM checkout_attempts
		WHERE idempotency_key = $1
	`

	var attempt domain.CheckoutAttempt
	err := tx.QueryRow(ctx, query, key).Scan(
		&attempt.IdempotencyKey,
		&attempt.RequestHash,
		&attempt.OrderID,
		&attempt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		span.RecordError(err)

		return nil, fmt.Errorf("failed to query checkout attempt: %w", err)
	}

	return &attempt, nil
}

// FindAttempt reads an attempt outside any transaction. Checkout uses it
// to replay a finished attempt whose cart has already been cleared.
func (r *checkoutRepo) FindAttempt(ctx context.Context, key string) (*domain.CheckoutAttempt, error) {
	ctx, span := r.tracer.Start(ctx, "CheckoutRepository.FindAttempt")
	defer span.End()

	query := `
		SELECT idempotency_key, request_hash, order_id, created_at
		FROM checkout_attempts
		WHERE idempotency_key = $1
	`

	var attempt domain.CheckoutAttempt
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&attempt.IdempotencyKey,
		&attempt.RequestHash,
		&attempt.OrderID,
		&attempt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		span.RecordError(err)

		return nil, fmt.Errorf("failed to query checkout attempt: %w", err)
	}

	return &attempt, nil
}

// SetAttemptOrder fills in the produced order exactly once; an attempt
// that already points at an order is never overwritten.
func (r *checkoutRepo) SetAttemptOrder(ctx context.Context, tx pgx.Tx, key string, orderID int64) error {
	ctx, span := r.tracer.Start(ctx, "CheckoutRepository.SetAttemptOrder")
	defer span.End()

	span.SetAttributes(
		attribute.String("idempotency_key", key),
		attribute.Int64("order_id", orderID),
	)

	query := `
		UPDATE checkout_attempts
		SET order_id = $2
		WHERE idempotency_key = $1 AND order_id IS NULL
	`

	commandTag, err := tx.Exec(ctx, query, key, orderID)
	if err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to set attempt order: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return fmt.Errorf("checkout attempt %q already linked to an order: %w", key, domain.ErrStateConflict)
	}

	return nil
}
