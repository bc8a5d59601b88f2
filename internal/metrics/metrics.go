// Package metrics exposes the relay's Prometheus instrumentation on the
// default registry; the ops server serves it under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gtgbot_batches_ingested_total",
		Help: "Alert batches accepted by the webhook and pushed to the queue.",
	})

	IngestRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gtgbot_ingest_rejected_total",
		Help: "Webhook requests rejected before queueing.",
	}, []string{"reason"})

	QueuePushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gtgbot_queue_push_failures_total",
		Help: "Validated batches the store failed to accept.",
	})

	BatchesDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gtgbot_batches_dispatched_total",
		Help: "Batches popped from the queue and fanned out.",
	})

	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gtgbot_sends_total",
		Help: "Notification messages delivered, by chat kind.",
	}, []string{"kind"})

	SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gtgbot_send_failures_total",
		Help: "Notification messages that failed to deliver, by chat kind.",
	}, []string{"kind"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gtgbot_queue_depth",
		Help: "Entries awaiting dispatch, sampled by the report job.",
	})

	SubscriberCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gtgbot_subscribers",
		Help: "Chats currently subscribed, sampled by the report job.",
	})
)
