package notification

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/internal/notification/email"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	outboxUtils "github.com/sakashimaa/go-fulfillment/pkg/outbox/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Service struct {
	emailSender email.Sender
	logger      *zap.Logger
	pool        *pgxpool.Pool
	tracer      trace.Tracer
}

func NewService(emailSender email.Sender, logger *zap.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		emailSender: emailSender,
		logger:      logger,
		pool:        pool,
		tracer:      otel.Tracer("notification-service"),
	}
}

// HandlePaymentReceipt sends the receipt at most once per outbox event.
// Kafka redelivers on consumer failure, so dedup runs on event_id.
func (s *Service) HandlePaymentReceipt(ctx context.Context, event domain.PaymentReceiptEvent) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandlePaymentReceipt")
	defer span.End()

	span.SetAttributes(attribute.Int64("event_id", event.EventID))

	if event.CustomerEmail == "" {
		mylogger.Info(
			ctx,
			s.logger,
			"Order has no customer email, skipping receipt",
			zap.Int64("order_id", event.OrderID),
		)

		return nil
	}

	return outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, event.EventID, func() error {
		return s.emailSender.SendReceiptEmail(ctx, event.CustomerEmail, event)
	})
}
