package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// IdempotencyRepository is the durable record of "operation already
// performed" markers. Keys are claimed exactly once and never deleted.
type IdempotencyRepository interface {
	Reserve(ctx context.Context, tx pgx.Tx, key, fingerprint string) (created bool, existing string, err error)
}

type idempotencyRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewIdempotencyRepository(logger *zap.Logger) IdempotencyRepository {
	return &idempotencyRepo{
		logger: logger,
		tracer: otel.Tracer("repository/idempotency_repo"),
	}
}

// Reserve claims key inside the caller's transaction. ON CONFLICT DO
// NOTHING keeps the transaction alive on a duplicate; a concurrent
// claimant blocks here until the first one commits, then observes the
// stored fingerprint.
func (r *idempotencyRepo) Reserve(ctx context.Context, tx pgx.Tx, key, fingerprint string) (bool, string, error) {
	ctx, span := r.tracer.Start(ctx, "IdempotencyRepository.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("idempotency_key", key),
	)

	insertQuery := `
		INSERT INTO idempotency_keys (key, fingerprint)
		VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`

	commandTag, err := tx.Exec(ctx, insertQuery, key, fingerprint)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert idempotency key",
			zap.String("key", key),
			zap.Error(err),
		)

		return false, "", fmt.Errorf("failed to reserve idempotency key: %w", err)
	}

	if commandTag.RowsAffected() == 1 {
		return true, "", nil
	}

	selectQuery := `
		SELECT fingerprint
		FROM idempotency_keys
		WHERE key = $1
	`

	var existing string
	if err := tx.QueryRow(ctx, selectQuery, key).Scan(&existing); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Claimed by a transaction that later rolled back.
			return false, "", fmt.Errorf("idempotency key %q vanished during reserve", key)
		}

		span.RecordError(err)

		return false, "", fmt.Errorf("failed to read idempotency key: %w", err)
	}

	return false, existing, nil
}
