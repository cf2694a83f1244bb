package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bengkelku"

var (
	once sync.Once

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings created.",
		},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_transitions_total",
			Help:      "Booking status updates by target status.",
		},
		[]string{"status"},
	)

	pointsCredited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_credited_total",
			Help:      "Loyalty points credited to users.",
		},
	)

	pointsDeducted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_deducted_total",
			Help:      "Loyalty points redeemed by users.",
		},
	)

	transientFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transient_failures_total",
			Help:      "Simulated network failures by operation.",
		},
		[]string{"operation"},
	)

	sideEffectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Failed best-effort side effects of booking completion.",
		},
		[]string{"effect"},
	)

	storageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Storage read/write errors by operation.",
		},
		[]string{"operation"},
	)

	vehiclesDue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vehicles_due_for_service",
			Help:      "Vehicles needing service at the last reminder run.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingsCreated,
			statusTransitions,
			pointsCredited,
			pointsDeducted,
			transientFailures,
			sideEffectFailures,
			storageErrors,
			vehiclesDue,
		)
	})
}

func IncBookingCreated() {
	bookingsCreated.Inc()
}

func IncStatusTransition(status string) {
	statusTransitions.WithLabelValues(status).Inc()
}

func AddPointsCredited(points int) {
	if points > 0 {
		pointsCredited.Add(float64(points))
	}
}

func AddPointsDeducted(points int) {
	if points > 0 {
		pointsDeducted.Add(float64(points))
	}
}

func IncTransientFailure(operation string) {
	transientFailures.WithLabelValues(operation).Inc()
}

func IncSideEffectFailure(effect string) {
	sideEffectFailures.WithLabelValues(effect).Inc()
}

func IncStorageError(operation string) {
	storageErrors.WithLabelValues(operation).Inc()
}

func SetVehiclesDue(n int) {
	vehiclesDue.Set(float64(n))
}
