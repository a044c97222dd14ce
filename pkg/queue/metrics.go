package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentlytics_queue_events_claimed_total",
		Help: "Queue entries claimed for processing, including re-claims.",
	})

	eventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentlytics_queue_events_processed_total",
		Help: "Events successfully projected and marked processed.",
	})

	eventsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentlytics_queue_events_failed_total",
		Help: "Events whose projection failed and will be re-claimed.",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentlytics_queue_depth",
		Help: "Unprocessed queue entries at the last post-batch count.",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agentlytics_queue_batch_duration_seconds",
		Help:    "Wall-clock duration of dispatching one claimed batch.",
		Buckets: prometheus.DefBuckets,
	})
)
