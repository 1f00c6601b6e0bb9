// Package metrics registers the closing-engine counters on the default
// Prometheus registry served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClosingsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outletpos",
		Name:      "closings_committed_total",
		Help:      "Shift closings persisted, by shift label.",
	}, []string{"shift"})

	ClosingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outletpos",
		Name:      "closing_decisions_total",
		Help:      "Closing form evaluations, by resulting state and reason.",
	}, []string{"state", "reason"})

	ApprovalAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outletpos",
		Name:      "closing_approval_attempts_total",
		Help:      "Manager approval attempts, by result.",
	}, []string{"result"})

	CommitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "outletpos",
		Name:      "closing_commit_failures_total",
		Help:      "Closing commits that failed to persist.",
	})

	ClockOutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "outletpos",
		Name:      "closing_clock_out_failures_total",
		Help:      "Attendance clock-outs that failed after a closing was saved.",
	})

	ReportCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outletpos",
		Name:      "closing_report_cache_total",
		Help:      "Closing report cache lookups, by result.",
	}, []string{"result"})
)
