// Package metrics exposes the process-wide Prometheus collectors served on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsAppended counts events appended to the durable log, by stream.
	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messages",
		Name:      "events_appended_total",
		Help:      "Events appended to the durable log.",
	}, []string{"stream"})

	// EventsPersisted counts events a worker has persisted and acked, by stream.
	EventsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messages",
		Name:      "events_persisted_total",
		Help:      "Events persisted to storage and acked.",
	}, []string{"stream"})

	// PersistRetries counts handler failures that led to redelivery, by stream.
	PersistRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messages",
		Name:      "persist_retries_total",
		Help:      "Persistence attempts that failed and will be retried.",
	}, []string{"stream"})

	// Pushes counts live frames pushed to connections, by outcome
	// (sent, dropped).
	Pushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messages",
		Name:      "pushes_total",
		Help:      "Live frames pushed to client connections.",
	}, []string{"outcome"})

	// LiveConnections gauges the number of registered client connections.
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "messages",
		Name:      "live_connections",
		Help:      "Currently registered client connections.",
	})

	// ResolverLookups counts participant-set lookups, by result (hit, miss).
	ResolverLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messages",
		Name:      "resolver_lookups_total",
		Help:      "Participant set lookups against the resolver cache.",
	}, []string{"result"})
)
