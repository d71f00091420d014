package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Saga related metrics
	SagasStarted     *prometheus.CounterVec
	SagaSteps        *prometheus.CounterVec
	SagaStepDuration *prometheus.HistogramVec
	SagaFailovers    *prometheus.CounterVec
	SagasFailed      *prometheus.CounterVec

	// Aggregate command metrics
	EntityCommands *prometheus.CounterVec

	// Urgency triage metrics
	TriageRequests *prometheus.CounterVec
	TriageLatency  prometheus.Histogram

	// Notification metrics
	NotificationsSent *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SagasStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sagas_started_total",
			Help:      "Total number of saga instances started",
		}, []string{"saga"}),
		SagaSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "saga_steps_total",
			Help:      "Total number of saga step executions",
		}, []string{"saga", "step", "status"}),
		SagaStepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "saga_step_duration_seconds",
			Help:      "Time spent executing saga steps",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"saga", "step"}),
		SagaFailovers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "saga_failovers_total",
			Help:      "Total number of retry-exhausted steps that failed over",
		}, []string{"saga", "step"}),
		SagasFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sagas_failed_total",
			Help:      "Total number of sagas that reached their failed state",
		}, []string{"saga"}),
		EntityCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entity_commands_total",
			Help:      "Total number of aggregate commands",
		}, []string{"entity", "command", "status"}),
		TriageRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "triage_requests_total",
			Help:      "Total number of urgency assessment requests",
		}, []string{"status"}),
		TriageLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "triage_request_duration_seconds",
			Help:      "Duration of urgency assessment requests",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_sent_total",
			Help:      "Total number of patient notifications",
		}, []string{"status"}),
	}
}
