package usher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "usher",
		Name:      "resolutions_total",
		Help:      "Number of redirect resolutions by outcome.",
	}, []string{"result"})
	resolutionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "usher",
		Name:      "resolution_duration_seconds",
		Help:      "Duration of redirect resolutions, hook chains included.",
		// Hooks may spawn labs, so the upper buckets are generous.
		Buckets: []float64{.005, .025, .1, .5, 1, 5, 15, 30, 60, 120},
	})
)

const (
	resultRedirect      = "redirect"
	resultNoMatch       = "no_match"
	resultHookFailure   = "hook_failure"
	resultResolution    = "resolution_failure"
	resultUnauthorized  = "unauthorized"
	resultClientFailure = "client_failure"
	resultInternal      = "internal_error"
)
