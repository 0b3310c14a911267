// Package metrics provides Prometheus instrumentation for the welcome bot.
// It exposes counters for event throughput and storage failures, and a
// histogram for end-to-end event handling latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsTotal counts inbound callback events, labeled by event type
	// ("conversation_started", "subscribed", "unsubscribed", "unknown").
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "viberbot_events_total",
		Help: "Total number of inbound callback events processed",
	}, []string{"event"})

	// DecodeErrorsTotal counts callback bodies rejected as malformed.
	DecodeErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viberbot_decode_errors_total",
		Help: "Total number of callback payloads that failed to decode",
	})

	// StorageErrorsTotal counts failed writes against the Redis backend.
	StorageErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viberbot_storage_errors_total",
		Help: "Total number of failed storage operations",
	})

	// EventLatency records event handling latency in seconds, from body
	// read to reply written.
	EventLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "viberbot_event_latency_seconds",
		Help:    "Event handling latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		EventsTotal,
		DecodeErrorsTotal,
		StorageErrorsTotal,
		EventLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
