package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/pkg/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Payment is the authoritative state of a payment as the provider sees
// it. Reconciliation always fetches this instead of trusting webhook
// bodies.
type Payment struct {
	ProviderPaymentID string `json:"id"`
	OrderID           int64  `json:"order_id"`
	Amount            int64  `json:"amount"`
	Method            string `json:"method"`
	Status            string `json:"status"`
}

const StatusCompleted = "completed"

type Gateway interface {
	FetchPayment(ctx context.Context, providerPaymentID string) (*Payment, error)
}

type httpGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) Gateway {
	settings := gobreaker.Settings{
		Name:        "PaymentProvider",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &httpGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		cb:      gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func (g *httpGateway) FetchPayment(ctx context.Context, providerPaymentID string) (*Payment, error) {
	payment, err := utils.ExecuteWithBreaker(g.cb, func() (*Payment, error) {
		return g.fetchPayment(ctx, providerPaymentID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("payment provider circuit open: %w", domain.ErrUpstreamUnavailable)
		}

		return nil, err
	}

	return payment, nil
}

func (g *httpGateway) fetchPayment(ctx context.Context, providerPaymentID string) (*Payment, error) {
	url := fmt.Sprintf("%s/v1/payments/%s", g.baseURL, providerPaymentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn(
			"Payment provider request failed",
			zap.String("provider_payment_id", providerPaymentID),
			zap.Error(err),
		)

		// A timeout is not evidence of anything; never treat it as a result.
		return nil, fmt.Errorf("payment provider unreachable: %w", domain.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("provider payment %q: %w", providerPaymentID, domain.ErrNotFound)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("payment provider returned %d: %w", resp.StatusCode, domain.ErrUpstreamUnavailable)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("payment provider returned unexpected status %d", resp.StatusCode)
	}

	var payment Payment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, fmt.Errorf("failed to decode provider payment: %w", err)
	}

	return &payment, nil
}
