package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLMCallLatency tracks every language model round trip in milliseconds.
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "friendlymail_llm_call_latency_ms",
			Help:    "Language model call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"provider", "status"},
	)

	ClassificationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendlymail_classification_total",
			Help: "Classification outcomes recorded, by decision and intent",
		},
		[]string{"decision", "intent"},
	)

	DraftCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendlymail_draft_total",
			Help: "Draft responses created, by whether a temporal rule matched",
		},
		[]string{"rule_matched"},
	)

	DeliveryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendlymail_delivery_total",
			Help: "Response delivery attempts, by provider and status",
		},
		[]string{"provider", "status"},
	)

	EmailSyncedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendlymail_email_synced_total",
			Help: "Emails stored by sync, by provider",
		},
		[]string{"provider"},
	)

	OwnerRunCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendlymail_owner_run_total",
			Help: "Per-owner auto-sync runs, by result",
		},
		[]string{"result"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "friendlymail_batch_duration_seconds",
			Help:    "Duration of one decision engine batch in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

func RecordLLMCall(provider, status string, duration time.Duration) {
	LLMCallLatency.WithLabelValues(provider, status).Observe(float64(duration.Milliseconds()))
}

func RecordClassification(decision, intent string) {
	ClassificationCount.WithLabelValues(decision, intent).Inc()
}

func RecordDraft(ruleMatched bool) {
	label := "false"
	if ruleMatched {
		label = "true"
	}
	DraftCount.WithLabelValues(label).Inc()
}

func RecordDelivery(provider, status string) {
	DeliveryCount.WithLabelValues(provider, status).Inc()
}

func RecordSynced(provider string, n int) {
	EmailSyncedCount.WithLabelValues(provider).Add(float64(n))
}

func RecordBatch(duration time.Duration) {
	BatchDuration.Observe(duration.Seconds())
}

func RecordOwnerRun(result string) {
	OwnerRunCount.WithLabelValues(result).Inc()
}
