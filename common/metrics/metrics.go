// Package metrics registers the prometheus instruments for integrity checks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Check kinds used as label values
const (
	CheckFull    = "full"
	CheckChanged = "changed"
	CheckTask    = "task"
)

var (
	// CheckDuration observes wall time of completed integrity checks
	CheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "termserver",
		Subsystem: "integrity",
		Name:      "check_duration_seconds",
		Help:      "Duration of integrity checks by kind.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"check"})

	// IssuesFound counts flagged components across completed checks
	IssuesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "termserver",
		Subsystem: "integrity",
		Name:      "issues_total",
		Help:      "Components flagged by integrity checks.",
	}, []string{"check"})

	// HookRuns counts pre-commit hook outcomes
	HookRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "termserver",
		Subsystem: "integrity",
		Name:      "hook_runs_total",
		Help:      "Pre-commit integrity hook outcomes.",
	}, []string{"result"})
)
