// Package metrics provides Prometheus metrics for the Rolodex service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DetectionRunsTotal tracks detection runs by entity kind and status
	DetectionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rolodex",
			Subsystem: "detection",
			Name:      "runs_total",
			Help:      "Total number of duplicate detection runs by entity kind and status",
		},
		[]string{"entity_kind", "status"},
	)

	// DetectionDuration tracks detection run duration in seconds
	DetectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rolodex",
			Subsystem: "detection",
			Name:      "run_duration_seconds",
			Help:      "Duration of duplicate detection runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"entity_kind"},
	)

	// PairsScored tracks pairwise similarity computations
	PairsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rolodex",
			Subsystem: "detection",
			Name:      "pairs_scored_total",
			Help:      "Total number of entity pairs scored for similarity",
		},
		[]string{"entity_kind"},
	)

	// DuplicateGroupsFound tracks groups emitted per detection run
	DuplicateGroupsFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rolodex",
			Subsystem: "detection",
			Name:      "groups_found_total",
			Help:      "Total number of duplicate groups found",
		},
		[]string{"entity_kind"},
	)

	// MergesTotal tracks merge invocations by entity kind and status
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rolodex",
			Subsystem: "merge",
			Name:      "merges_total",
			Help:      "Total number of merge invocations by entity kind and status",
		},
		[]string{"entity_kind", "status"},
	)

	// MergeDuration tracks merge duration in seconds
	MergeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rolodex",
			Subsystem: "merge",
			Name:      "duration_seconds",
			Help:      "Duration of merge operations in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"entity_kind"},
	)

	// LiaisonsRelocated tracks liaison foreign-key rewrites during merges
	LiaisonsRelocated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rolodex",
			Subsystem: "merge",
			Name:      "liaisons_relocated_total",
			Help:      "Total number of liaisons repointed to a canonical entity",
		},
	)

	// LiaisonOperations tracks liaison lifecycle operations
	LiaisonOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rolodex",
			Subsystem: "liaison",
			Name:      "operations_total",
			Help:      "Total number of liaison operations by type and status",
		},
		[]string{"operation", "status"},
	)

	// StoreBatchDuration tracks atomic batch commit duration
	StoreBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rolodex",
			Subsystem: "store",
			Name:      "batch_duration_seconds",
			Help:      "Duration of atomic batch commits in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rolodex",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rolodex",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// ImportRecordsTotal tracks bulk import record outcomes
	ImportRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rolodex",
			Subsystem: "importer",
			Name:      "records_total",
			Help:      "Total number of imported records by entity kind and outcome",
		},
		[]string{"entity_kind", "outcome"},
	)
)

// RecordDetectionRun records a detection run metric
func RecordDetectionRun(entityKind, status string, durationSeconds float64) {
	DetectionRunsTotal.WithLabelValues(entityKind, status).Inc()
	DetectionDuration.WithLabelValues(entityKind).Observe(durationSeconds)
}

// RecordMerge records a merge invocation metric
func RecordMerge(entityKind, status string, durationSeconds float64) {
	MergesTotal.WithLabelValues(entityKind, status).Inc()
	MergeDuration.WithLabelValues(entityKind).Observe(durationSeconds)
}

// RecordLiaisonOperation records a liaison lifecycle operation
func RecordLiaisonOperation(operation, status string) {
	LiaisonOperations.WithLabelValues(operation, status).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
