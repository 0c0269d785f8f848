package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_events_received_total",
		Help: "Total number of tracking events accepted by the ingestion endpoints, labelled by event type.",
	}, []string{"event_type"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_events_rejected_total",
		Help: "Total number of tracking submissions rejected as malformed, labelled by reason.",
	}, []string{"reason"})

	EventsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_events_persisted_total",
		Help: "Total number of entries handed successfully to a sink.",
	})

	EventsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_events_failed_total",
		Help: "Total number of entries lost because a sink write failed, labelled by sink.",
	}, []string{"sink"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_events_dropped_total",
		Help: "Total number of entries dropped because too many writes were already in flight.",
	})

	RelayBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_relay_batches_total",
		Help: "Total number of Kafka relay batches flushed to the entry store, labelled by outcome.",
	}, []string{"outcome"})

	WriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_ingest_write_duration_ms",
		Help:    "Latency of a single sink write in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)
