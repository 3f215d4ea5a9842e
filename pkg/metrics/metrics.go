package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Scheduling metrics
	AppointmentsCreated     *prometheus.CounterVec
	AppointmentTransitions  *prometheus.CounterVec
	SlotConflicts           prometheus.Counter
	RescheduleAttempts      *prometheus.CounterVec
	SchedulingLatency       *prometheus.HistogramVec
	LockContention          prometheus.Counter
	SuggestionsGenerated    prometheus.Counter
	SuggestionScoringTime   prometheus.Histogram
	UtilizationAggregations *prometheus.CounterVec

	// Reminder metrics
	RemindersDispatched *prometheus.CounterVec
	RemindersFailed     *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		AppointmentsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appointments_created_total",
			Help:      "Total number of appointments created",
		}, []string{"type"}),
		AppointmentTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appointment_transitions_total",
			Help:      "Total number of appointment status transitions",
		}, []string{"from", "to"}),
		SlotConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "slot_conflicts_total",
			Help:      "Total number of bookings rejected due to slot conflicts",
		}),
		RescheduleAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reschedule_attempts_total",
			Help:      "Total number of reschedule attempts by outcome",
		}, []string{"outcome"}),
		SchedulingLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scheduling_operation_duration_seconds",
			Help:      "Duration of scheduling operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		LockContention: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resource_lock_contention_total",
			Help:      "Total number of failed resource lock acquisitions",
		}),
		SuggestionsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "suggestions_generated_total",
			Help:      "Total number of slot suggestions returned",
		}),
		SuggestionScoringTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "suggestion_scoring_duration_seconds",
			Help:      "Time spent scoring candidate slots",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25},
		}),
		UtilizationAggregations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "utilization_aggregations_total",
			Help:      "Total number of utilization aggregations computed",
		}, []string{"granularity"}),
		RemindersDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminders_dispatched_total",
			Help:      "Total number of reminders dispatched",
		}, []string{"channel"}),
		RemindersFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminders_failed_total",
			Help:      "Total number of reminder dispatch failures",
		}, []string{"channel"}),
	}
}
