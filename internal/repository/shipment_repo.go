package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ShipmentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, shipment *domain.Shipment) error
	LockByID(ctx context.Context, tx pgx.Tx, shipmentID int64) (*domain.Shipment, error)
	SetDelivered(ctx context.Context, tx pgx.Tx, shipmentID int64, deliveredAt time.Time) error
}

type shipmentRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewShipmentRepository(pool *pgxpool.Pool, logger *zap.Logger) ShipmentRepository {
	return &shipmentRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/shipment_repo"),
	}
}

func (r *shipmentRepo) Create(ctx context.Context, tx pgx.Tx, shipment *domain.Shipment) error {
	ctx, span := r.tracer.Start(ctx, "ShipmentRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", shipment.OrderID),
		attribute.String("carrier", shipment.Carrier),
	)

	query := `
		INSERT INTO shipments (order_id, carrier, tracking_number, shipped_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, shipped_at
	`

	if err := tx.QueryRow(
		ctx,
		query,
		shipment.OrderID,
		shipment.Carrier,
		shipment.TrackingNumber,
	).Scan(&shipment.ID, &shipment.ShippedAt); err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to insert shipment: %w", err)
	}

	return nil
}

func (r *shipmentRepo) LockByID(ctx context.Context, tx pgx.Tx, shipmentID int64) (*domain.Shipment, error) {
	ctx, span := r.tracer.Start(ctx, "ShipmentRepository.LockByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("shipment_id", shipmentID),
	)

	query := `
		SELECT id, order_id, carrier, tracking_number, shipped_at, delivered_at
		FROM shipments
		WHERE id = $1
		FOR UPDATE
	`

	var shipment domain.Shipment
	err := tx.QueryRow(ctx, query, shipmentID).Scan(
		&shipment.ID,
		&shipment.OrderID,
		&shipment.Carrier,
		&shipment.TrackingNumber,
		&shipment.ShippedAt,
		&shipment.DeliveredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShipmentNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("failed to lock shipment: %w", err)
	}

	return &shipment, nil
}

func (r *shipmentRepo) SetDelivered(ctx context.Context, tx pgx.Tx, shipmentID int64, deliveredAt time.Time) error {
	ctx, span := r.tracer.Start(ctx, "ShipmentRepository.SetDelivered")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("shipment_id", shipmentID),
	)

	query := `
		UPDATE shipments
		SET delivered_at = $2
		WHERE id = $1 AND delivered_at IS NULL
	`

	commandTag, err := tx.Exec(ctx, query, shipmentID, deliveredAt)
	if err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to mark shipment delivered: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Shipment already delivered", zap.Int64("shipment_id", shipmentID))
		return fmt.Errorf("shipment %d already delivered: %w", shipmentID, domain.ErrStateConflict)
	}

	return nil
}
