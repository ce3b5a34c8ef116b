package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubInventoryService struct {
	result *service.AdjustResult
	err    error
}

func (s *stubInventoryService) Adjust(_ context.Context, _, _ int64, _, _ string) (*service.AdjustResult, error) {
	return s.result, s.err
}

func (s *stubInventoryService) AdjustTx(_ context.Context, _ pgx.Tx, _, _ int64, _, _ string) (*service.AdjustResult, error) {
	return s.result, s.err
}

func (s *stubInventoryService) GetStock(_ context.Context, _ int64) (*domain.VariantStock, error) {
	if s.result == nil {
		return nil, s.err
	}

	return s.result.Stock, s.err
}

func newAdjustApp(svc service.InventoryService) *fiber.App {
	app := fiber.New()
	app.Post("/inventory/adjust", NewInventoryHandler(svc, zap.NewNop()).Adjust)

	return app
}

func TestInventoryAdjust_EchoesIdempotencyKey(t *testing.T) {
	svc := &stubInventoryService{
		result: &service.AdjustResult{
			Stock:   &domain.VariantStock{VariantID: 7, Quantity: 12},
			Applied: true,
		},
	}
	app := newAdjustApp(svc)

	req := httptest.NewRequest(fiber.MethodPost, "/inventory/adjust",
		strings.NewReader(`{"variant_id":7,"delta":2}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	req.Header.Set("Idempotency-Key", "adj-key-1")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body struct {
		VariantID      int64  `json:"variant_id"`
		Stock          int64  `json:"stock"`
		Applied        bool   `json:"applied"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))

	require.EqualValues(t, 7, body.VariantID)
	require.EqualValues(t, 12, body.Stock)
	require.True(t, body.Applied)
	require.Equal(t, "adj-key-1", body.IdempotencyKey)
}

func TestInventoryAdjust_ReplayReturnsOK(t *testing.T) {
	svc := &stubInventoryService{
		result: &service.AdjustResult{
			Stock:   &domain.VariantStock{VariantID: 7, Quantity: 12},
			Applied: false,
		},
	}
	app := newAdjustApp(svc)

	req := httptest.NewRequest(fiber.MethodPost, "/inventory/adjust",
		strings.NewReader(`{"variant_id":7,"delta":2}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	req.Header.Set("Idempotency-Key", "adj-key-1")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestInventoryAdjust_MissingKeyRejected(t *testing.T) {
	app := newAdjustApp(&stubInventoryService{})

	req := httptest.NewRequest(fiber.MethodPost, "/inventory/adjust",
		strings.NewReader(`{"variant_id":7,"delta":2}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
