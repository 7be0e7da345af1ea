// Package metrics exposes Prometheus collectors for the scrape/monitor
// pipeline.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MonitorPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobscout_monitor_pass_duration_seconds",
			Help:    "Duration of one batch monitoring pass.",
			Buckets: prometheus.DefBuckets,
		},
	)
	JobsChecked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobscout_jobs_checked_total",
			Help: "Jobs processed by monitoring passes.",
		},
	)
	JobsClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobscout_jobs_closed_total",
			Help: "Jobs transitioned to closed by change detection.",
		},
	)
	TierAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobscout_tier_attempts_total",
			Help: "Fallback tier attempts, labeled by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)
	QueueClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobscout_queue_claims_total",
			Help: "Queue entries claimed, labeled by source.",
		},
		[]string{"source"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobscout_queue_pending",
			Help: "Queue entries currently eligible for claim.",
		},
	)
)

func init() {
	prometheus.MustRegister(MonitorPassDuration)
	prometheus.MustRegister(JobsChecked)
	prometheus.MustRegister(JobsClosed)
	prometheus.MustRegister(TierAttempts)
	prometheus.MustRegister(QueueClaims)
	prometheus.MustRegister(QueueDepth)
}

func Expose(addr string) {
	slog.Info("exposing prometheus metrics", "address", addr)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server failed", "error", err)
	}
}
