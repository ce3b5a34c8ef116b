package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

type AdjustResult struct {
	Stock   *domain.VariantStock
	Applied bool
}

type InventoryService interface {
	Adjust(ctx context.Context, variantID, delta int64, key, reason string) (*AdjustResult, error)
	AdjustTx(ctx context.Context, tx pgx.Tx, variantID, delta int64, key, reason string) (*AdjustResult, error)
	GetStock(ctx context.Context, variantID int64) (*domain.VariantStock, error)
}

type inventoryService struct {
	pool   *pgxpool.Pool
	repo   repository.InventoryRepository
	logger *zap.Logger
	tracer trace.Tracer
}

func NewInventoryService(pool *pgxpool.Pool, repo repository.InventoryRepository, logger *zap.Logger) InventoryService {
	return &inventoryService{
		pool:   pool,
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("service/inventory_service"),
	}
}

// Adjust applies a signed stock delta in its own transaction. The ledger
// entry and the quantity change land together or not at all.
func (s *inventoryService) Adjust(ctx context.Context, variantID, delta int64, key, reason string) (*AdjustResult, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.Adjust")
	defer span.End()

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

	result, err := s.AdjustTx(ctx, tx, variantID, delta, key, reason)
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

	return result, nil
}

// AdjustTx runs the adjustment inside the caller's transaction so that
// checkout can span several adjustments plus the order write atomically.
//
// The variant row lock taken first makes the read-check-write-record
// sequence linearizable per variant; adjustments on different variants
// proceed in parallel.
func (s *inventoryService) AdjustTx(ctx context.Context, tx pgx.Tx, variantID, delta int64, key, reason string) (*AdjustResult, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.AdjustTx")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("variant_id", variantID),
		attribute.Int64("delta", delta),
		attribute.String("idempotency_key", key),
	)

	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("blank idempotency key: %w", domain.ErrValidation)
	}
	if reason == "" {
		reason = domain.AdjustReasonManual
	}

	stock, err := s.repo.LockStock(ctx, tx, variantID)
	if err != nil {
		return nil, err
	}

	entry, err := s.repo.GetEntryByKey(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		if entry.VariantID != variantID {
			mylogger.Warn(
				ctx,
				s.logger,
				"Idempotency key reused for a different variant",
				zap.String("idempotency_key", key),
				zap.Int64("requested_variant", variantID),
				zap.Int64("recorded_variant", entry.VariantID),
			)

			return nil, repository.ErrKeyVariantMismatch
		}

		// Replay: the delta was applied exactly once already.
		return &AdjustResult{Stock: stock, Applied: false}, nil
	}

	newQuantity := stock.Quantity + delta
	if newQuantity < 0 {
		mylogger.Warn(
			ctx,
			s.logger,
			"Insufficient stock",
			zap.Int64("variant_id", variantID),
			zap.Int64("quantity", stock.Quantity),
			zap.Int64("delta", delta),
		)

		return nil, fmt.Errorf("variant %d has %d, requested %d: %w",
			variantID, stock.Quantity, -delta, repository.ErrInsufficientStock)
	}

	if err := s.repo.UpdateStock(ctx, tx, variantID, newQuantity); err != nil {
		return nil, err
	}

	inserted, err := s.repo.InsertEntry(ctx, tx, &domain.LedgerEntry{
		IdempotencyKey:    key,
		VariantID:         variantID,
		DeltaQuantity:     delta,
		ResultingQuantity: newQuantity,
		Reason:            reason,
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost a cross-variant race on the same key: the variant lock does
		// not cover it, the ledger unique index does. Roll back everything.
		return nil, repository.ErrKeyVariantMismatch
	}

	stock.Quantity = newQuantity

	mylogger.Info(
		ctx,
		s.logger,
		"Stock adjusted",
		zap.Int64("variant_id", variantID),
		zap.Int64("delta", delta),
		zap.Int64("resulting_quantity", newQuantity),
		zap.String("reason", reason),
	)

	return &AdjustResult{Stock: stock, Applied: true}, nil
}

func (s *inventoryService) GetStock(ctx context.Context, variantID int64) (*domain.VariantStock, error) {
	return s.repo.GetStock(ctx, variantID)
}
