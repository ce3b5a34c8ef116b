package domain

import (
	"encoding/json"
	"fmt"
)

// Provider webhook events form a closed union discriminated by the
// event-type field. Each kind carries its own payload; nothing is probed
// from string prefixes at runtime.

type WebhookEventType string

const (
	EventPaymentStatusChanged WebhookEventType = "payment.status_changed"
	EventRefundUpdated        WebhookEventType = "refund.updated"
	EventMethodActivated      WebhookEventType = "payment_method.activated"
)

type WebhookEvent struct {
	Type          WebhookEventType
	PaymentStatus *PaymentStatusChangedEvent
	Refund        *RefundUpdatedEvent
	Method        *MethodActivatedEvent
}

// PaymentStatusChangedEvent is a change notification, not a state source:
// reconciliation re-fetches the authoritative status from the provider
// and ignores any status embedded in the body.
type PaymentStatusChangedEvent struct {
	ProviderPaymentID string `json:"payment_id"`
}

type RefundUpdatedEvent struct {
	RefundID          string `json:"refund_id"`
	ProviderPaymentID string `json:"payment_id"`
	Status            string `json:"status"`
	Amount            int64  `json:"amount"`
}

type MethodActivatedEvent struct {
	ProviderMethodID string `json:"method_id"`
}

type webhookEnvelope struct {
	Type WebhookEventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// ParseWebhookEvent decodes a provider notification into the closed union.
// A structurally incomplete event (unknown type, missing object id) fails
// with ErrValidation before any side effect can happen.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed webhook body: %w", ErrValidation)
	}

	switch envelope.Type {
	case EventPaymentStatusChanged:
		var payload PaymentStatusChangedEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("malformed payment status event: %w", ErrValidation)
		}
		if payload.ProviderPaymentID == "" {
			return nil, fmt.Errorf("payment status event without payment id: %w", ErrValidation)
		}

		return &WebhookEvent{Type: envelope.Type, PaymentStatus: &payload}, nil
	case EventRefundUpdated:
		var payload RefundUpdatedEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("malformed refund event: %w", ErrValidation)
		}
		if payload.RefundID == "" || payload.ProviderPaymentID == "" {
			return nil, fmt.Errorf("refund event without refund or payment id: %w", ErrValidation)
		}

		return &WebhookEvent{Type: envelope.Type, Refund: &payload}, nil
	case EventMethodActivated:
		var payload MethodActivatedEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("malformed method event: %w", ErrValidation)
		}
		if payload.ProviderMethodID == "" {
			return nil, fmt.Errorf("method event without method id: %w", ErrValidation)
		}

		return &WebhookEvent{Type: envelope.Type, Method: &payload}, nil
	}

	return nil, fmt.Errorf("unknown webhook event type %q: %w", envelope.Type, ErrValidation)
}
