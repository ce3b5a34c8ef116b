package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_ServesDomainCounters(t *testing.T) {
	reg := NewRegistry()

	CheckoutsCompleted.Inc()
	WebhookEventsProcessed.WithLabelValues("payment.completed").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	require.True(t, names["fulfillment_checkouts_completed_total"])
	require.True(t, names["fulfillment_webhook_events_processed_total"])

	require.GreaterOrEqual(t, testutil.ToFloat64(CheckoutsCompleted), float64(1))
	require.GreaterOrEqual(t,
		testutil.ToFloat64(WebhookEventsProcessed.WithLabelValues("payment.completed")), float64(1))
}
