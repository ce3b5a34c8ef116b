package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/internal/repository"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderService interface {
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	Transition(ctx context.Context, orderID int64, target domain.OrderStatus) (*domain.Order, error)
}

type orderService struct {
	pool      *pgxpool.Pool
	orderRepo repository.OrderRepository
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewOrderService(pool *pgxpool.Pool, orderRepo repository.OrderRepository, logger *zap.Logger) OrderService {
	return &orderService{
		pool:      pool,
		orderRepo: orderRepo,
		logger:    logger,
		tracer:    otel.Tracer("service/order_service"),
	}
}

func (s *orderService) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.orderRepo.GetByID(ctx, orderID)
}

// Transition applies one edge of the order lifecycle. Illegal edges fail
// with a conflict and leave the status untouched, including for the
// administrative override endpoint.
func (s *orderService) Transition(ctx context.Context, orderID int64, target domain.OrderStatus) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Transition")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("target_status", string(target)),
	)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to begin transaction",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to begin transaction: %w", err)
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

	previous, err := s.orderRepo.TransitionStatus(ctx, tx, orderID, target)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to commit transaction",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", string(previous)),
		zap.String("to", string(target)),
	)

	return s.orderRepo.GetByID(ctx, orderID)
}
