// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AIRequests counts AI gateway calls by provider and outcome (ok, error, rejected).
	AIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cocode_ai_requests_total",
		Help: "Total number of AI gateway requests",
	}, []string{"provider", "outcome"})

	// AIRequestDuration records upstream latency of successful and failed AI calls.
	AIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cocode_ai_request_duration_seconds",
		Help:    "AI provider call latency in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
	}, []string{"provider"})

	// WebSocketConnections is the number of open realtime connections on this instance.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cocode_websocket_connections",
		Help: "Number of active realtime websocket connections",
	})

	// RealtimeRooms is the number of projects with at least one local subscriber.
	RealtimeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cocode_realtime_rooms",
		Help: "Number of project rooms with local subscribers",
	})

	// RealtimeMessages counts project-message events fanned out, by sender kind.
	RealtimeMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cocode_realtime_messages_total",
		Help: "Total number of project messages published",
	}, []string{"kind"})

	// RealtimeDrops counts deliveries dropped because a client could not keep up.
	RealtimeDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cocode_realtime_dropped_total",
		Help: "Total number of realtime deliveries dropped due to backpressure",
	}, []string{"reason"})

	// RealtimeMalformed counts inbound frames or AI payloads that failed to parse.
	RealtimeMalformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cocode_realtime_malformed_total",
		Help: "Total number of malformed realtime payloads",
	}, []string{"source"})

	// TasksEnqueued counts background tasks by type and queue mode (async, sync).
	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cocode_tasks_enqueued_total",
		Help: "Total number of background tasks enqueued",
	}, []string{"task_type", "mode"})
)
