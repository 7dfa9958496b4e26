package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Background task outcomes after an inbound email
	BackgroundTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_background_tasks_total",
			Help: "Background tasks run after inbound email processing",
		},
		[]string{"task", "outcome"}, // task: draft, summary, priority; outcome: success, skipped, failed
	)

	// LLM and embedding call latency (seconds)
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_llm_call_duration_seconds",
			Help:    "Language model and embedding call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"operation", "status"},
	)

	// Inbound email webhook results
	InboundEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_inbound_emails_total",
			Help: "Inbound emails received by the webhook",
		},
		[]string{"status"}, // status: processed, invalid, failed
	)

	// Draft approval transitions
	DraftTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_draft_transitions_total",
			Help: "Draft approval workflow transitions",
		},
		[]string{"to"},
	)
)

// RecordBackgroundTask counts the outcome of one background task
func RecordBackgroundTask(task, outcome string) {
	BackgroundTasks.WithLabelValues(task, outcome).Inc()
}

// RecordLLMCall records the duration of a model call
func RecordLLMCall(operation, status string, duration time.Duration) {
	LLMCallDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// RecordInboundEmail counts a webhook outcome
func RecordInboundEmail(status string) {
	InboundEmails.WithLabelValues(status).Inc()
}

// RecordDraftTransition counts a draft entering a status
func RecordDraftTransition(to string) {
	DraftTransitions.WithLabelValues(to).Inc()
}
