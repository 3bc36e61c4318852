// Package metrics provides Prometheus metrics for schedule generation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// schedulesGenerated counts generated periods.
	// Labels:
	//   - frequency: e.g. "monthly", "bi-weekly"
	schedulesGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_periods_generated_total",
			Help: "Total number of schedule periods generated",
		},
		[]string{"frequency"},
	)

	// generationFailures counts aborted generations.
	// Labels:
	//   - reason: "invalid_frequency", "invalid_target_rule", "no_target_milestone",
	//     "unbounded_walk", "not_found", "internal"
	generationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_generation_failures_total",
			Help: "Total number of schedule generations that failed",
		},
		[]string{"reason"},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schedule_generation_duration_seconds",
			Help:    "Duration of one schedule-set generation in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	// walkSteps records calendar days stepped per working-day walk.
	// Labels:
	//   - direction: "previous" or "next"
	walkSteps = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "working_day_walk_steps",
			Help:    "Calendar days stepped by one working-day walk",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 365},
		},
		[]string{"direction"},
	)

	holidayFetches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "holiday_fetches_total",
			Help: "Holiday lists requested from the provider (one per locality/entity/year)",
		},
	)

	entityWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_entity_warnings_total",
			Help: "Milestone entities that could not be resolved to localities",
		},
		[]string{"entity_type"},
	)
)

func init() {
	prometheus.MustRegister(schedulesGenerated)
	prometheus.MustRegister(generationFailures)
	prometheus.MustRegister(generationDuration)
	prometheus.MustRegister(walkSteps)
	prometheus.MustRegister(holidayFetches)
	prometheus.MustRegister(entityWarnings)
}

// RecordGeneration records a successful generation.
func RecordGeneration(frequency string, periods int, durationSeconds float64) {
	schedulesGenerated.WithLabelValues(frequency).Add(float64(periods))
	generationDuration.Observe(durationSeconds)
}

// RecordGenerationFailure records an aborted generation.
func RecordGenerationFailure(reason string) {
	generationFailures.WithLabelValues(reason).Inc()
}

// ObserveWalk records the number of calendar days one walk stepped.
func ObserveWalk(direction string, steps int) {
	walkSteps.WithLabelValues(direction).Observe(float64(steps))
}

// RecordHolidayFetch counts one provider call.
func RecordHolidayFetch() {
	holidayFetches.Inc()
}

// RecordEntityWarning counts an unresolved milestone entity.
func RecordEntityWarning(entityType string) {
	entityWarnings.WithLabelValues(entityType).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
