// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Total number of accepted submission status transitions",
		},
		[]string{"to_status"},
	)

	TransitionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workflow_transition_conflicts_total",
			Help: "Total number of guarded transitions lost to a concurrent writer",
		},
	)

	RetryScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_operations_scheduled_total",
			Help: "Total number of retry operations scheduled",
		},
		[]string{"operation_type"},
	)

	RetryExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_operations_exhausted_total",
			Help: "Total number of retry operations that hit max attempts",
		},
		[]string{"operation_type"},
	)

	RetrySkippedUnhealthy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_operations_skipped_unhealthy_total",
			Help: "Scheduled retries deferred because the dependency is unhealthy",
		},
		[]string{"operation_type"},
	)

	DeliveriesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_sent_total",
			Help: "Total number of delivery emails sent",
		},
		[]string{"purpose"},
	)

	DuplicateDeliveriesBlocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deliveries_duplicates_blocked_total",
			Help: "Total number of duplicate sends suppressed by the delivery guard",
		},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of CRM webhook events received",
		},
		[]string{"event_type", "outcome"},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "workflow_step_duration_seconds",
			Help: "Duration of workflow step execution in seconds",
		},
		[]string{"step"},
	)

	IntegrationHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "integration_health_status",
			Help: "Health of each external dependency (0=unhealthy, 1=degraded, 2=healthy)",
		},
		[]string{"component"},
	)
)
