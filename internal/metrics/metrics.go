package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// CheckoutsCompleted counts orders created by checkout. Replays of an
	// already finished attempt are not counted.
	CheckoutsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_checkouts_completed_total",
		Help: "Orders created by checkout.",
	})

	// WebhookEventsProcessed counts provider webhook events acknowledged
	// with 200, labelled by event type.
	WebhookEventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_webhook_events_processed_total",
		Help: "Provider webhook events processed, by event type.",
	}, []string{"event"})
)

// NewRegistry builds the registry served on the metrics listener.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	reg.MustRegister(CheckoutsCompleted)
	reg.MustRegister(WebhookEventsProcessed)

	return reg
}
