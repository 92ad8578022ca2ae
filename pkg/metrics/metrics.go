// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InstancesCreatedTotal tracks checklist instances created by stage and source
	InstancesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "checklist",
			Name:      "instances_created_total",
			Help:      "Total number of checklist instances created by stage and item source",
		},
		[]string{"stage", "source"},
	)

	// SubmissionsTotal tracks submit attempts by stage and outcome
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "checklist",
			Name:      "submissions_total",
			Help:      "Total number of checklist submission attempts by outcome",
		},
		[]string{"stage", "outcome"},
	)

	// PromotionsTotal tracks stage-to-stage promotions
	PromotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "checklist",
			Name:      "promotions_total",
			Help:      "Total number of checklist promotions by target stage",
		},
		[]string{"to_stage"},
	)

	// SyncItemsAppended tracks items appended to draft instances during sync
	SyncItemsAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "checklist",
			Name:      "sync_items_appended_total",
			Help:      "Total number of items appended to draft instances by sync",
		},
	)

	// UploadURLsIssued tracks presigned upload URLs handed to clients
	UploadURLsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "media",
			Name:      "upload_urls_issued_total",
			Help:      "Total number of presigned upload URLs issued",
		},
		[]string{"scope"},
	)

	// SubmissionValidationDuration tracks how long submission validation takes
	SubmissionValidationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "checklist",
			Name:      "submission_validation_seconds",
			Help:      "Duration of submission validation in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)
)
