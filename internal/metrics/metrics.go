// Package metrics provides Prometheus instrumentation for the intake and
// dispatch pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Webhook metrics
	WebhookRequestsTotal   *prometheus.CounterVec
	WebhookDurationSeconds *prometheus.HistogramVec

	// Queue metrics
	QueueOpsTotal *prometheus.CounterVec
	QueueDepth    *prometheus.GaugeVec

	// Worker metrics
	WorkerRunsTotal      *prometheus.CounterVec
	WorkerEntriesDrained *prometheus.CounterVec
	WorkerDrainSeconds   *prometheus.HistogramVec

	// NLU metrics
	NLUQueriesTotal *prometheus.CounterVec
	NLURetriesTotal *prometheus.CounterVec
	NLUQuerySeconds *prometheus.HistogramVec

	// Router metrics
	DispatchesTotal *prometheus.CounterVec

	// Dialog metrics
	DialogPromptsTotal *prometheus.CounterVec

	// Delivery metrics
	DeliveriesTotal *prometheus.CounterVec

	// Dead-letter metrics
	DeadLetterTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		WebhookRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hermod_webhook_requests_total",
				Help: "Total number of webhook events by event type and status",
			},
			[]string{"event_type", "status"}, // status: queued, invalid, error
		),

		WebhookDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hermod_webhook_duration_seconds",
				Help:    "Webhook intake duration in seconds by event type",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"event_type"}, // event_type: message, postback, referral
		),

		QueueOpsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hermod_queue_ops_total",
				Help: "Total queue operations by op, queue kind, and status",
			},
			[]string{"op", "kind", "status"}, // op: push, pop; status: ok, empty, error
		),

		QueueDepth: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hermod_queue_depth",
				Help: "Current number of queued entries by queue kind",
			},
			[]string{"kind"},
		),

		WorkerRunsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hermod_worker_runs_total",
				Help: "Total worker invocations by queue kind and outcome",
			},
			[]string{"kind", "status"}, // status: drained, noop, error
		),

		WorkerEntriesDrained: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hermod_worker_entries_drained_total",
				Help: "Total entries processed by classification branch",
			},
			[]string{"kind", "branch"}, // branch: payload, coordinates, dialog, nlu, skipped
		),

		WorkerDrainSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hermod_worker_drain_duration_seconds",
				Help:    "Duration of a full worker drain by queue kind",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"kind"},
		),

		NLUQueriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hermod_nlu_queries_total",
				Help: "Total NLU queries by provider and status",
			},
			[]string{"provider", "status"}, // status: success, default, error
		),

		NLURetriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hermod_nlu_retries_total",
				Help: "Total NLU retry attempts by provider",
			},
			[]string{"provider"},
		),

		NLUQuerySeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hermod_nlu_query_duration_seconds",
				Help:    "NLU query duration in seconds by provider",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		),

		DispatchesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hermod_router_dispatches_total",
				Help: "Total router dispatches by action source and status",
			},
			[]string{"source", "status"}, // source: route, table, fulfillment; status: ok, unregistered, error
		),

		DialogPromptsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hermod_dialog_prompts_total",
				Help: "Total dialog prompt operations",
			},
			[]string{"op"}, // op: ask, resume
		),

		DeliveriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hermod_deliveries_total",
				Help: "Total outbound platform deliveries by type and status",
			},
			[]string{"type", "status"}, // type: message, sender_action; status: success, error
		),

		DeadLetterTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hermod_dead_letter_total",
				Help: "Total events dropped to the dead-letter archive by reason",
			},
			[]string{"reason"}, // reason: action_not_registered, handler_error
		),
	}

	return m
}

// RecordWebhook records an intake webhook event
func (m *Metrics) RecordWebhook(eventType, status string, duration float64) {
	m.WebhookRequestsTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(duration)
}

// RecordQueueOp records a queue push or pop
func (m *Metrics) RecordQueueOp(op, kind, status string) {
	m.QueueOpsTotal.WithLabelValues(op, kind, status).Inc()
}

// SetQueueDepth records the current queue depth for a kind
func (m *Metrics) SetQueueDepth(kind string, depth float64) {
	m.QueueDepth.WithLabelValues(kind).Set(depth)
}

// RecordWorkerRun records a completed worker invocation
func (m *Metrics) RecordWorkerRun(kind, status string, duration float64) {
	m.WorkerRunsTotal.WithLabelValues(kind, status).Inc()
	m.WorkerDrainSeconds.WithLabelValues(kind).Observe(duration)
}

// RecordEntryDrained records one processed entry and its classification branch
func (m *Metrics) RecordEntryDrained(kind, branch string) {
	m.WorkerEntriesDrained.WithLabelValues(kind, branch).Inc()
}

// RecordNLUQuery records an NLU query outcome
func (m *Metrics) RecordNLUQuery(provider, status string, duration float64) {
	m.NLUQueriesTotal.WithLabelValues(provider, status).Inc()
	m.NLUQuerySeconds.WithLabelValues(provider).Observe(duration)
}

// RecordNLURetry records a retried NLU attempt
func (m *Metrics) RecordNLURetry(provider string) {
	m.NLURetriesTotal.WithLabelValues(provider).Inc()
}

// RecordDispatch records a router dispatch
func (m *Metrics) RecordDispatch(source, status string) {
	m.DispatchesTotal.WithLabelValues(source, status).Inc()
}

// RecordDialogPrompt records a dialog prompt operation
func (m *Metrics) RecordDialogPrompt(op string) {
	m.DialogPromptsTotal.WithLabelValues(op).Inc()
}

// RecordDelivery records an outbound delivery attempt
func (m *Metrics) RecordDelivery(deliveryType, status string) {
	m.DeliveriesTotal.WithLabelValues(deliveryType, status).Inc()
}

// RecordDeadLetter records a dropped event
func (m *Metrics) RecordDeadLetter(reason string) {
	m.DeadLetterTotal.WithLabelValues(reason).Inc()
}
