package domain_test

import (
	"testing"

	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookEvent_PaymentStatusChanged(t *testing.T) {
	body := []byte(`{"type":"payment.status_changed","data":{"payment_id":"pay_1","status":"completed"}}`)

	event, err := domain.ParseWebhookEvent(body)
	require.NoError(t, err)
	require.Equal(t, domain.EventPaymentStatusChanged, event.Type)
	require.NotNil(t, event.PaymentStatus)
	require.Equal(t, "pay_1", event.PaymentStatus.ProviderPaymentID)
	require.Nil(t, event.Refund)
	require.Nil(t, event.Method)
}

func TestParseWebhookEvent_RefundUpdated(t *testing.T) {
	body := []byte(`{"type":"refund.updated","data":{"refund_id":"re_1","payment_id":"pay_1","status":"completed","amount":900}}`)

	event, err := domain.ParseWebhookEvent(body)
	require.NoError(t, err)
	require.Equal(t, domain.EventRefundUpdated, event.Type)
	require.NotNil(t, event.Refund)
	require.Equal(t, "re_1", event.Refund.RefundID)
	require.EqualValues(t, 900, event.Refund.Amount)
}

func TestParseWebhookEvent_MethodActivated(t *testing.T) {
	body := []byte(`{"type":"payment_method.activated","data":{"method_id":"pm_1"}}`)

	event, err := domain.ParseWebhookEvent(body)
	require.NoError(t, err)
	require.Equal(t, domain.EventMethodActivated, event.Type)
	require.NotNil(t, event.Method)
	require.Equal(t, "pm_1", event.Method.ProviderMethodID)
}

func TestParseWebhookEvent_Rejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type":"payment.exploded","data":{}}`},
		{"missing payment id", `{"type":"payment.status_changed","data":{}}`},
		{"refund without refund id", `{"type":"refund.updated","data":{"payment_id":"pay_1"}}`},
		{"refund without payment id", `{"type":"refund.updated","data":{"refund_id":"re_1"}}`},
		{"method without id", `{"type":"payment_method.activated","data":{}}`},
		{"empty body", ``},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.ParseWebhookEvent([]byte(tc.body))
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}
