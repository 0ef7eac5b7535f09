// Package metrics exposes Prometheus instrumentation for the realtime core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks live WebSocket sessions on this instance.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_ws_connections_active",
		Help: "Number of currently attached WebSocket sessions.",
	})

	// SubscriptionsActive tracks conversation topics with at least one local subscriber.
	SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_ws_subscriptions_active",
		Help: "Number of conversation topics with a local subscriber.",
	})

	// EventsTotal counts protocol events by type and direction (in/out).
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_ws_events_total",
		Help: "Protocol events processed, by event type and direction.",
	}, []string{"type", "direction"})

	// EventErrors counts events that produced a wire error, by error code.
	EventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_ws_event_errors_total",
		Help: "Protocol events that failed, by wire error code.",
	}, []string{"code"})

	// PersistDuration measures durable-store mutation latency per operation.
	PersistDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulse_persist_duration_seconds",
		Help:    "Durable store mutation latency by operation.",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation"})

	// BusPublished counts events published to the fan-out bus.
	BusPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_bus_published_total",
		Help: "Events published to the fan-out bus.",
	})

	// BusReceived counts events received from the fan-out bus.
	BusReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_bus_received_total",
		Help: "Events received from the fan-out bus.",
	})

	// SlowConsumerCloses counts sessions closed because their send queue overflowed.
	SlowConsumerCloses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_ws_slow_consumer_closes_total",
		Help: "Sessions closed after sustained send queue overflow.",
	})

	// FrameErrors counts malformed inbound frames.
	FrameErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_ws_frame_errors_total",
		Help: "Inbound frames that failed to decode.",
	})
)
