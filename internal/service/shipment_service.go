package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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

type ShipmentService interface {
	ShipOrder(ctx context.Context, orderID int64, carrier, trackingNumber string) (*domain.Shipment, error)
	MarkDelivered(ctx context.Context, shipmentID int64) (*domain.DeliveryResult, error)
}

type shipmentService struct {
	pool         *pgxpool.Pool
	shipmentRepo repository.ShipmentRepository
	orderRepo    repository.OrderRepository
	logger       *zap.Logger
	tracer       trace.Tracer
}

func NewShipmentService(
	pool *pgxpool.Pool,
	shipmentRepo repository.ShipmentRepository,
	orderRepo repository.OrderRepository,
	logger *zap.Logger,
) ShipmentService {
	return &shipmentService{
		pool:         pool,
		shipmentRepo: shipmentRepo,
		orderRepo:    orderRepo,
		logger:       logger,
		tracer:       otel.Tracer("service/shipment_service"),
	}
}

// ShipOrder records the carrier handoff and moves the order to shipped.
// Orders outside a shippable state fail with a conflict and no shipment
// row is kept.
func (s *shipmentService) ShipOrder(ctx context.Context, orderID int64, carrier, trackingNumber string) (*domain.Shipment, error) {
	ctx, span := s.tracer.Start(ctx, "ShipmentService.ShipOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("carrier", carrier),
	)

	if strings.TrimSpace(carrier) == "" || strings.TrimSpace(trackingNumber) == "" {
		return nil, fmt.Errorf("carrier and tracking number are required: %w", domain.ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
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

	previous, err := s.orderRepo.TransitionStatus(ctx, tx, orderID, domain.OrderStatusShipped)
	if err != nil {
		return nil, err
	}

	shipment := &domain.Shipment{
		OrderID:        orderID,
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
	}

	if err := s.shipmentRepo.Create(ctx, tx, shipment); err != nil {
		return nil, err
	}

	if err := s.orderRepo.SetShipmentID(ctx, tx, orderID, shipment.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order shipped",
		zap.Int64("order_id", orderID),
		zap.Int64("shipment_id", shipment.ID),
		zap.String("from_status", string(previous)),
	)

	return shipment, nil
}

// MarkDelivered stamps the delivery time and drives shipped->delivered,
// returning the before/after status for observability.
func (s *shipmentService) MarkDelivered(ctx context.Context, shipmentID int64) (*domain.DeliveryResult, error) {
	ctx, span := s.tracer.Start(ctx, "ShipmentService.MarkDelivered")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("shipment_id", shipmentID),
	)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
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

	shipment, err := s.shipmentRepo.LockByID(ctx, tx, shipmentID)
	if err != nil {
		return nil, err
	}

	if err := s.shipmentRepo.SetDelivered(ctx, tx, shipmentID, time.Now().UTC()); err != nil {
		return nil, err
	}

	previous, err := s.orderRepo.TransitionStatus(ctx, tx, shipment.OrderID, domain.OrderStatusDelivered)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result := &domain.DeliveryResult{
		OrderID:        shipment.OrderID,
		PreviousStatus: previous,
		CurrentStatus:  domain.OrderStatusDelivered,
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Shipment delivered",
		zap.Int64("shipment_id", shipmentID),
		zap.Int64("order_id", shipment.OrderID),
		zap.String("previous_status", string(result.PreviousStatus)),
	)

	return result, nil
}
