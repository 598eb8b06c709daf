package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// ReportBuildsTotal tracks the number of deck builds served
	ReportBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wbr_report_builds_total",
			Help: "Total number of deck builds",
		},
		[]string{"status"}, // status: success, failed
	)

	// ReportBuildDuration measures deck build duration in seconds
	ReportBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wbr_report_build_duration_seconds",
			Help:    "Deck build duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"status"},
	)

	// PublishedReportsTotal counts published reports by mode
	PublishedReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wbr_published_reports_total",
			Help: "Total number of published reports",
		},
		[]string{"mode"}, // mode: plain, protected
	)

	// SourceQueriesTotal counts source loads by connector type
	SourceQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wbr_source_queries_total",
			Help: "Total number of source queries executed",
		},
		[]string{"type", "status"}, // status: success, error
	)

	// HarnessChecksTotal counts scenario harness check outcomes
	HarnessChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wbr_harness_checks_total",
			Help: "Total number of scenario harness checks",
		},
		[]string{"result"}, // result: SUCCESS, FAILED
	)
)
