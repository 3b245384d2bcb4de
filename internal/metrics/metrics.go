// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgd_fetch_total",
		Help: "Fetch operations by mode and outcome",
	}, []string{"mode", "outcome"}) // mode=local|container, outcome=success|validation|setup|workspace|execution|timeout|artifact_missing

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "epgd_fetch_duration_seconds",
		Help:    "Wall-clock duration of fetch operations",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~68m
	}, []string{"mode"})

	fetchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epgd_fetch_in_flight",
		Help: "Currently running grabber invocations",
	})

	toolSetupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgd_tool_setup_total",
		Help: "Tool cache setup steps executed",
	}, []string{"step"}) // step=clone|install

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgd_proc_terminate_total",
		Help: "Forced terminations of grabber process groups",
	}, []string{"signal", "result"})

	cacheFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epgd_cache_files",
		Help: "Number of artifacts in the output cache",
	})

	cacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epgd_cache_bytes",
		Help: "Total size of the output cache in bytes",
	})
)

// RecordFetch tracks one completed fetch operation.
func RecordFetch(mode, outcome string, d time.Duration) {
	fetchTotal.WithLabelValues(mode, outcome).Inc()
	fetchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// FetchStarted/FetchFinished bracket a grabber invocation.
func FetchStarted()  { fetchInFlight.Inc() }
func FetchFinished() { fetchInFlight.Dec() }

// IncToolSetup counts one executed setup step.
func IncToolSetup(step string) {
	toolSetupTotal.WithLabelValues(step).Inc()
}

// IncProcTerminate counts one kill attempt against a grabber process group.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// SetCacheStats publishes the current cache directory footprint.
func SetCacheStats(files int, bytes int64) {
	cacheFiles.Set(float64(files))
	cacheBytes.Set(float64(bytes))
}
