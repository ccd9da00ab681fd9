// Package metrics exposes the gateway's prometheus collectors.
package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "chargebook"
	promSubsystem = "gateway"
)

var (
	backendHistogram = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "backend_seconds",
		Help:      "duration of booking backend calls",
		Buckets:   prom.DefBuckets,
	}, []string{"operation"})
	backendErrors = prom.NewCounterVec(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "backend_errors_total",
		Help:      "failed booking backend calls by error kind",
	}, []string{"operation", "kind"})
	transitions = prom.NewCounterVec(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "transitions_total",
		Help:      "acknowledged reservation transitions",
	}, []string{"event", "replay"})
	slotChanges = prom.NewCounterVec(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "slot_changes_total",
		Help:      "committed slot availability changes",
	}, []string{"reason"})
	httpRequests = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "http_seconds",
		Help:      "duration of inbound HTTP requests",
		Buckets:   prom.DefBuckets,
	}, []string{"route", "status"})
	feedClients = prom.NewGauge(prom.GaugeOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "feed_clients",
		Help:      "connected slot feed websocket clients",
	})
)

func init() {
	prom.MustRegister(backendHistogram, backendErrors, transitions, slotChanges, httpRequests, feedClients)
}

// ObserveBackend records one backend call. kind is empty on success.
func ObserveBackend(operation string, started time.Time, kind string) {
	backendHistogram.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if kind != "" {
		backendErrors.WithLabelValues(operation, kind).Inc()
	}
}

// Transition counts one lifecycle transition.
func Transition(event string, replay bool) {
	r := "false"
	if replay {
		r = "true"
	}
	transitions.WithLabelValues(event, r).Inc()
}

// SlotChange counts one committed ledger change.
func SlotChange(reason string) {
	slotChanges.WithLabelValues(reason).Inc()
}

// ObserveHTTP records one inbound request.
func ObserveHTTP(route, status string, d time.Duration) {
	httpRequests.WithLabelValues(route, status).Observe(d.Seconds())
}

// FeedClients adjusts the connected feed client gauge.
func FeedClients(delta int) {
	feedClients.Add(float64(delta))
}
