package quarantine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarantine_uploads_total",
			Help: "Uploads accepted into quarantine, by result",
		},
		[]string{"result"},
	)

	scanOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarantine_scan_outcomes_total",
			Help: "Terminal scan transitions, by status and scanner",
		},
		[]string{"status", "scanner"},
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quarantine_scan_duration_seconds",
			Help:    "Duration of the scan-and-process sequence",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"scanner"},
	)

	lifecycleRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarantine_lifecycle_records_total",
			Help: "Records touched by lifecycle jobs, by job and result",
		},
		[]string{"job", "result"},
	)

	securityAlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quarantine_security_alerts_total",
			Help: "Security alerts emitted for infected uploads",
		},
	)

	orphanedObjectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarantine_orphaned_objects_total",
			Help: "Stored objects out of sync with their records, by kind",
		},
		[]string{"kind"},
	)
)
