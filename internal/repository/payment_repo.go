package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PaymentRepository interface {
	LockByProviderID(ctx context.Context, tx pgx.Tx, providerPaymentID string) (*domain.Payment, error)
	Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, paymentID int64, status domain.PaymentStatus, completedAt *time.Time) error
	InsertRefund(ctx context.Context, tx pgx.Tx, refund *domain.PaymentRefund) (bool, error)
	ActivateMethod(ctx context.Context, providerMethodID string) (bool, error)
}

type paymentRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPaymentRepository(pool *pgxpool.Pool, logger *zap.Logger) PaymentRepository {
	return &paymentRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/payment_repo"),
	}
}

// LockByProviderID serializes concurrent deliveries of events for the
// same provider payment. Returns nil when no local row exists yet.
func (r *paymentRepo) LockByProviderID(ctx context.Context, tx pgx.Tx, providerPaymentID string) (*domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.LockByProviderID")
	defer span.End()

	span.SetAttributes(
		attribute.String("provider_payment_id", providerPaymentID),
	)

	query := `
		SELECT id, order_id, amount, method, status, provider_payment_id, completed_at, created_at, updated_at
		FROM payments
		WHERE provider_payment_id = $1
		FOR UPDATE
	`

	var payment domain.Payment
	err := tx.QueryRow(ctx, query, providerPaymentID).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.Amount,
		&payment.Method,
		&payment.Status,
		&payment.ProviderPaymentID,
		&payment.CompletedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to lock payment",
			zap.String("provider_payment_id", providerPaymentID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}

	return &payment, nil
}

func (r *paymentRepo) Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", payment.OrderID),
		attribute.Int64("amount", payment.Amount),
		attribute.String("provider_payment_id", payment.ProviderPaymentID),
	)

	query := `
		INSERT INTO payments (order_id, amount, method, status, provider_payment_id, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		query,
		payment.OrderID,
		payment.Amount,
		payment.Method,
		string(payment.Status),
		payment.ProviderPaymentID,
		payment.CompletedAt,
	).Scan(
		&payment.ID,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	); err != nil {
		span.RecordError(err)

		mylogger.Warn(ctx, r.logger, "Create payment failed", zap.Error(err))

		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return nil
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, paymentID int64, status domain.PaymentStatus, completedAt *time.Time) error {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("payment_id", paymentID),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE payments
		SET status = $2,
			completed_at = COALESCE(completed_at, $3),
			updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query, paymentID, string(status), completedAt)
	if err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to update payment status: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}

	return nil
}

// InsertRefund records a provider refund once; a redelivered refund id is
// a no-op and reports inserted=false.
func (r *paymentRepo) InsertRefund(ctx context.Context, tx pgx.Tx, refund *domain.PaymentRefund) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.InsertRefund")
	defer span.End()

	span.SetAttributes(
		attribute.String("refund_id", refund.RefundID),
		attribute.Int64("payment_id", refund.PaymentID),
	)

	query := `
		INSERT INTO payment_refunds (payment_id, refund_id, refund_status, refund_amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (refund_id) DO NOTHING
		RETURNING id, created_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		refund.PaymentID,
		refund.RefundID,
		refund.RefundStatus,
		refund.RefundAmount,
	).Scan(&refund.ID, &refund.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Info(
				ctx,
				r.logger,
				"Refund already recorded, skipping",
				zap.String("refund_id", refund.RefundID),
			)

			return false, nil
		}

		span.RecordError(err)

		return false, fmt.Errorf("failed to insert refund: %w", err)
	}

	return true, nil
}

// ActivateMethod resolves a payment method to active. Re-activating an
// already-active method affects no rows.
func (r *paymentRepo) ActivateMethod(ctx context.Context, providerMethodID string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.ActivateMethod")
	defer span.End()

	span.SetAttributes(
		attribute.String("provider_method_id", providerMethodID),
	)

	query := `
		INSERT INTO payment_methods (provider_method_id, status)
		VALUES ($1, 'active')
		ON CONFLICT (provider_method_id) DO UPDATE
		SET status = 'active', updated_at = NOW()
		WHERE payment_methods.status <> 'active'
	`

	commandTag, err := r.pool.Exec(ctx, query, providerMethodID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to activate payment method",
			zap.String("provider_method_id", providerMethodID),
			zap.Error(err),
		)

		return false, fmt.Errorf("failed to activate payment method: %w", err)
	}

	return commandTag.RowsAffected() > 0, nil
}
