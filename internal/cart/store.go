package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Store is the TTL'd key-value cart store. Carts are owned elsewhere;
// checkout only reads them and deletes them on success.
type Store interface {
	Get(ctx context.Context, cartID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, cartID string) error
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) Store {
	return &redisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
		tracer: otel.Tracer("cart/redis_store"),
	}
}

func cartKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}

func (s *redisStore) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "CartStore.Get")
	defer span.End()

	span.SetAttributes(
		attribute.String("cart_id", cartID),
	)

	val, err := s.client.Get(ctx, cartKey(cartID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("cart %q: %w", cartID, domain.ErrNotFound)
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Failed to read cart",
			zap.String("cart_id", cartID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("cart store read failed: %w", domain.ErrUpstreamUnavailable)
	}

	var cart domain.Cart
	if err := json.Unmarshal([]byte(val), &cart); err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to decode cart %q: %w", cartID, err)
	}

	return &cart, nil
}

func (s *redisStore) Save(ctx context.Context, cart *domain.Cart) error {
	ctx, span := s.tracer.Start(ctx, "CartStore.Save")
	defer span.End()

	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}

	if err := s.client.Set(ctx, cartKey(cart.ID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)

		return fmt.Errorf("cart store write failed: %w", domain.ErrUpstreamUnavailable)
	}

	return nil
}

func (s *redisStore) Delete(ctx context.Context, cartID string) error {
	ctx, span := s.tracer.Start(ctx, "CartStore.Delete")
	defer span.End()

	if err := s.client.Del(ctx, cartKey(cartID)).Err(); err != nil {
		span.RecordError(err)

		return fmt.Errorf("cart store delete failed: %w", domain.ErrUpstreamUnavailable)
	}

	return nil
}
