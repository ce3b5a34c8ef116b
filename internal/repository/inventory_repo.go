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

type InventoryRepository interface {
	GetEntryByKey(ctx context.Context, tx pgx.Tx, key string) (*domain.LedgerEntry, error)
	LockStock(ctx context.Context, tx pgx.Tx, variantID int64) (*domain.VariantStock, error)
	UpdateStock(ctx context.Context, tx pgx.Tx, variantID, quantity int64) error
	InsertEntry(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) (bool, error)
	GetStock(ctx context.Context, variantID int64) (*domain.VariantStock, error)
}

type inventoryRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewInventoryRepository(pool *pgxpool.Pool, logger *zap.Logger) InventoryRepository {
	return &inventoryRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/inventory_repo"),
	}
}

func (r *inventoryRepo) GetEntryByKey(ctx context.Context, tx pgx.Tx, key string) (*domain.LedgerEntry, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.GetEntryByKey")
	defer span.End()

	query := `
		SELECT id, idempotency_key, variant_id, delta_quantity, resulting_quantity, reason, created_at
		FROM inventory_ledger
		WHERE idempotency_key = $1
	`

	var entry domain.LedgerEntry
	err := tx.QueryRow(ctx, query, key).Scan(
		&entry.ID,
		&entry.IdempotencyKey,
		&entry.VariantID,
		&entry.DeltaQuantity,
		&entry.ResultingQuantity,
		&entry.Reason,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query ledger entry",
			zap.String("idempotency_key", key),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query ledger entry: %w", err)
	}

	return &entry, nil
}

// LockStock takes the row lock that serializes every adjustment for the
// variant. The upsert creates a zero-quantity row for a variant seen for
// the first time and still acquires the lock in the same statement.
func (r *inventoryRepo) LockStock(ctx context.Context, tx pgx.Tx, variantID int64) (*domain.VariantStock, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.LockStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("variant_id", variantID),
	)

	query := `
		INSERT INTO variant_stock (variant_id, quantity)
		VALUES ($1, 0)
		ON CONFLICT (variant_id) DO UPDATE SET quantity = variant_stock.quantity
		RETURNING variant_id, quantity, updated_at
	`

	var stock domain.VariantStock
	if err := tx.QueryRow(ctx, query, variantID).
		Scan(&stock.VariantID, &stock.Quantity, &stock.UpdatedAt); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to lock variant stock",
			zap.Int64("variant_id", variantID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to lock variant stock: %w", err)
	}

	return &stock, nil
}

func (r *inventoryRepo) UpdateStock(ctx context.Context, tx pgx.Tx, variantID, quantity int64) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.UpdateStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("variant_id", variantID),
		attribute.Int64("quantity", quantity),
	)

	query := `
		UPDATE variant_stock
		SET quantity = $2, updated_at = NOW()
		WHERE variant_id = $1
	`

	commandTag, err := tx.Exec(ctx, query, variantID, quantity)
	if err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to update variant stock: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return fmt.Errorf("variant %d: %w", variantID, domain.ErrNotFound)
	}

	return nil
}

// InsertEntry writes the immutable ledger entry. A duplicate key loses the
// race and reports inserted=false; the caller re-reads the winner's entry.
func (r *inventoryRepo) InsertEntry(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.InsertEntry")
	defer span.End()

	span.SetAttributes(
		attribute.String("idempotency_key", entry.IdempotencyKey),
		attribute.Int64("variant_id", entry.VariantID),
		attribute.Int64("delta", entry.DeltaQuantity),
	)

	query := `
		INSERT INTO inventory_ledger (idempotency_key, variant_id, delta_quantity, resulting_quantity, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		entry.IdempotencyKey,
		entry.VariantID,
		entry.DeltaQuantity,
		entry.ResultingQuantity,
		entry.Reason,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert ledger entry",
			zap.String("idempotency_key", entry.IdempotencyKey),
			zap.Error(err),
		)

		return false, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return true, nil
}

func (r *inventoryRepo) GetStock(ctx context.Context, variantID int64) (*domain.VariantStock, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.GetStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("variant_id", variantID),
	)

	query := `
		SELECT variant_id, quantity, updated_at
		FROM variant_stock
		WHERE variant_id = $1
	`

	var stock domain.VariantStock
	if err := r.pool.QueryRow(ctx, query, variantID).
		Scan(&stock.VariantID, &stock.Quantity, &stock.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("variant %d: %w", variantID, domain.ErrNotFound)
		}

		span.RecordError(err)

		return nil, fmt.Errorf("failed to query variant stock: %w", err)
	}

	return &stock, nil
}
