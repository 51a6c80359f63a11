// Package metrics registers the Prometheus instruments exported on
// /metrics by the inventory engine and the booking orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the instruments so components receive them explicitly
// instead of touching package globals.
type Metrics struct {
	ReserveOutcomes  *prometheus.CounterVec
	ConfirmOutcomes  *prometheus.CounterVec
	ReleaseOutcomes  *prometheus.CounterVec
	SweptBookings    prometheus.Counter
	LockWaitFailures prometheus.Counter
	LocksHeld        prometheus.Gauge
	ReserveDuration  prometheus.Histogram
	BookingsCreated  *prometheus.CounterVec
	PaymentCallbacks *prometheus.CounterVec
}

// New registers all instruments on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ReserveOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_reserve_total",
			Help: "Reserve operations by outcome.",
		}, []string{"outcome"}),
		ConfirmOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_confirm_total",
			Help: "Confirm operations by result.",
		}, []string{"result"}),
		ReleaseOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_release_total",
			Help: "Release operations by result.",
		}, []string{"result"}),
		SweptBookings: factory.NewCounter(prometheus.CounterOpts{
			Name: "inventory_swept_bookings_total",
			Help: "Expired bookings released by the sweeper.",
		}),
		LockWaitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "flight_lock_wait_failures_total",
			Help: "Lock acquisitions that exhausted their wait budget.",
		}),
		LocksHeld: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flight_locks_held",
			Help: "Flight mutex keys currently held by this process.",
		}),
		ReserveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inventory_reserve_duration_seconds",
			Help:    "Wall time of reserve operations.",
			Buckets: prometheus.DefBuckets,
		}),
		BookingsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "Booking creations by result.",
		}, []string{"result"}),
		PaymentCallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Payment callbacks by reported status.",
		}, []string{"status"}),
	}
}

// NewUnregistered returns instruments bound to a throwaway registry,
// for tests that do not scrape.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
