package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/internal/provider"
	"github.com/sakashimaa/go-fulfillment/internal/repository"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/go-fulfillment/pkg/outbox/domain"
	"github.com/sakashimaa/go-fulfillment/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ReconcileService ingests provider webhook events and idempotently
// drives payments, refunds and the order lifecycle. Events may arrive
// out of order or more than once; truth for payment status is always
// re-derived from the provider, never taken from the webhook body.
type ReconcileService interface {
	HandleEvent(ctx context.Context, event *domain.WebhookEvent) error
	HandlePaymentStatus(ctx context.Context, event *domain.PaymentStatusChangedEvent) (bool, error)
	HandleRefund(ctx context.Context, event *domain.RefundUpdatedEvent) (bool, error)
	HandleMethodActivated(ctx context.Context, event *domain.MethodActivatedEvent) (bool, error)
}

type reconcileService struct {
	pool              *pgxpool.Pool
	gateway           provider.Gateway
	paymentRepo       repository.PaymentRepository
	orderRepo         repository.OrderRepository
	outboxRepo        worker.OutboxRepository
	notificationTopic string
	logger            *zap.Logger
	tracer            trace.Tracer
}

func NewReconcileService(
	pool *pgxpool.Pool,
	gateway provider.Gateway,
	paymentRepo repository.PaymentRepository,
	orderRepo repository.OrderRepository,
	outboxRepo worker.OutboxRepository,
	notificationTopic string,
	logger *zap.Logger,
) ReconcileService {
	return &reconcileService{
		pool:              pool,
		gateway:           gateway,
		paymentRepo:       paymentRepo,
		orderRepo:         orderRepo,
		outboxRepo:        outboxRepo,
		notificationTopic: notificationTopic,
		logger:            logger,
		tracer:            otel.Tracer("service/reconcile_service"),
	}
}

func (s *reconcileService) HandleEvent(ctx context.Context, event *domain.WebhookEvent) error {
	switch event.Type {
	case domain.EventPaymentStatusChanged:
		_, err := s.HandlePaymentStatus(ctx, event.PaymentStatus)
		return err
	case domain.EventRefundUpdated:
		_, err := s.HandleRefund(ctx, event.Refund)
		return err
	case domain.EventMethodActivated:
		_, err := s.HandleMethodActivated(ctx, event.Method)
		return err
	}

	return fmt.Errorf("unhandled webhook event type %q: %w", event.Type, domain.ErrValidation)
}

// HandlePaymentStatus re-fetches the authoritative payment state from the
// provider and upserts the local row under a row lock. Exactly one caller
// across all deliveries observes completedNow=true; only that caller
// drives the pending->paid transition and enqueues the receipt event.
func (s *reconcileService) HandlePaymentStatus(ctx context.Context, event *domain.PaymentStatusChangedEvent) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ReconcileService.HandlePaymentStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("provider_payment_id", event.ProviderPaymentID),
	)

	remote, err := s.gateway.FetchPayment(ctx, event.ProviderPaymentID)
	if err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Provider fetch failed, leaving payment untouched",
			zap.String("provider_payment_id", event.ProviderPaymentID),
			zap.Error(err),
		)

		return false, err
	}

	status := mapProviderStatus(remote.Status)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
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

	local, err := s.paymentRepo.LockByProviderID(ctx, tx, event.ProviderPaymentID)
	if err != nil {
		return false, err
	}

	completedNow := status == domain.PaymentStatusCompleted &&
		(local == nil || local.CompletedAt == nil)

	var completedAt *time.Time
	if status == domain.PaymentStatusCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}

	payment := local
	if payment == nil {
		payment = &domain.Payment{
			OrderID:           remote.OrderID,
			Amount:            remote.Amount,
			Method:            remote.Method,
			Status:            status,
			ProviderPaymentID: remote.ProviderPaymentID,
			CompletedAt:       completedAt,
		}

		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return false, err
		}
	} else {
		if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID, status, completedAt); err != nil {
			return false, err
		}
	}

	if completedNow {
		if err := s.orderRepo.SetPaymentID(ctx, tx, payment.OrderID, payment.ID); err != nil {
			return false, err
		}

		_, err := s.orderRepo.TransitionStatus(ctx, tx, payment.OrderID, domain.OrderStatusPaid)
		if err != nil {
			// An order already past pending (e.g. shipped before the webhook
			// landed) keeps its status; the payment record still completes.
			if errors.Is(err, repository.ErrIllegalTransition) {
				mylogger.Warn(
					ctx,
					s.logger,
					"Payment completed but order not in a payable state",
					zap.Int64("order_id", payment.OrderID),
				)
			} else {
				return false, err
			}
		}

		order, err := s.orderRepo.GetByID(ctx, payment.OrderID)
		if err != nil {
			return false, err
		}

		if err := s.emitReceipt(ctx, tx, payment, order.CustomerEmail); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Payment reconciled",
		zap.String("provider_payment_id", event.ProviderPaymentID),
		zap.String("status", string(status)),
		zap.Bool("completed_now", completedNow),
	)

	return completedNow, nil
}

// HandleRefund records a provider refund exactly once, keyed by the
// provider refund id. Completing a refund does not cancel the order
// here: order-level refunding is an explicit operator decision.
func (s *reconcileService) HandleRefund(ctx context.Context, event *domain.RefundUpdatedEvent) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ReconcileService.HandleRefund")
	defer span.End()

	span.SetAttributes(
		attribute.String("refund_id", event.RefundID),
		attribute.String("provider_payment_id", event.ProviderPaymentID),
	)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
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

	payment, err := s.paymentRepo.LockByProviderID(ctx, tx, event.ProviderPaymentID)
	if err != nil {
		return false, err
	}
	if payment == nil {
		return false, fmt.Errorf("refund %q references unknown payment %q: %w",
			event.RefundID, event.ProviderPaymentID, domain.ErrNotFound)
	}

	inserted, err := s.paymentRepo.InsertRefund(ctx, tx, &domain.PaymentRefund{
		PaymentID:    payment.ID,
		RefundID:     event.RefundID,
		RefundStatus: event.Status,
		RefundAmount: event.Amount,
	})
	if err != nil {
		return false, err
	}

	if inserted && event.Status == domain.RefundStatusCompleted {
		if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID, domain.PaymentStatusRefunded, nil); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

func (s *reconcileService) HandleMethodActivated(ctx context.Context, event *domain.MethodActivatedEvent) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ReconcileService.HandleMethodActivated")
	defer span.End()

	activated, err := s.paymentRepo.ActivateMethod(ctx, event.ProviderMethodID)
	if err != nil {
		return false, err
	}

	if !activated {
		mylogger.Info(
			ctx,
			s.logger,
			"Payment method already active",
			zap.String("provider_method_id", event.ProviderMethodID),
		)
	}

	return activated, nil
}

func (s *reconcileService) emitReceipt(ctx context.Context, tx pgx.Tx, payment *domain.Payment, customerEmail string) error {
	wrapper := map[string]any{
		"event": "PaymentReceipt",
		"payload": domain.PaymentReceiptEvent{
			OrderID:       payment.OrderID,
			PaymentID:     payment.ID,
			CustomerEmail: customerEmail,
			Amount:        payment.Amount,
			PaidAt:        time.Now().UTC(),
		},
	}

	wrapperBytes, err := json.Marshal(wrapper)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt event: %w", err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: "Payment",
		AggregateID:   payment.ProviderPaymentID,
		EventType:     "PaymentReceipt",
		Payload:       wrapperBytes,
		Topic:         s.notificationTopic,
	}

	return s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent)
}

func mapProviderStatus(raw string) domain.PaymentStatus {
	switch raw {
	case provider.StatusCompleted:
		return domain.PaymentStatusCompleted
	case "failed":
		return domain.PaymentStatusFailed
	case "refunded":
		return domain.PaymentStatusRefunded
	default:
		return domain.PaymentStatusPending
	}
}
