// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "leaderboard_kinetics"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Pipeline metrics
	RunsTotal     *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec

	// Batch metrics
	SnapshotsIngested  prometheus.Counter
	SnapshotsSanitized prometheus.Counter
	HistoryAppendFails prometheus.Counter
	EntriesTrimmed     prometheus.Counter
	EntriesPruned      prometheus.Counter
	LeaderboardSize    *prometheus.GaugeVec
	WarmingUpEntries   *prometheus.GaugeVec

	// Storage metrics
	StoreOpDuration *prometheus.HistogramVec
	StoreOpErrors   *prometheus.CounterVec

	// Pub/sub metrics
	SummariesPublished *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests    *prometheus.CounterVec
	HTTPRateLimited prometheus.Counter

	// Health metrics
	LastSuccessfulRun *prometheus.GaugeVec
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by mode and status",
		}, []string{"mode", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"stage"}),
		StageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Total number of stage failures, fatal or degraded",
		}, []string{"stage"}),

		SnapshotsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "snapshots_ingested_total",
			Help:      "Total number of snapshots accepted into a run",
		}),
		SnapshotsSanitized: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "snapshots_sanitized_total",
			Help:      "Total number of snapshots with non-finite values replaced",
		}),
		HistoryAppendFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "history_append_failures_total",
			Help:      "Total number of snapshots whose history append failed",
		}),
		EntriesTrimmed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "entries_trimmed_total",
			Help:      "Total number of entries dropped by the length limit",
		}),
		EntriesPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "entries_pruned_total",
			Help:      "Total number of entries removed by retention",
		}),
		LeaderboardSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "entries",
			Help:      "Number of entries in the last persisted leaderboard",
		}, []string{"tag"}),
		WarmingUpEntries: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "warming_up_entries",
			Help:      "Number of entries without enough history in the last batch",
		}, []string{"tag"}),

		StoreOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "operation"}),
		StoreOpErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_errors_total",
			Help:      "Total number of store operation errors",
		}, []string{"store", "operation"}),

		SummariesPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "summaries_published_total",
			Help:      "Total number of run summaries published by status",
		}, []string{"status"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPRateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of ingest requests rejected by the rate limiter",
		}),

		LastSuccessfulRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last successful run per tag",
		}, []string{"tag"}),
	}
}

// Handler returns an HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler serving g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordRun records a finished pipeline run.
func (m *Metrics) RecordRun(mode, tag string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	} else if mode != "preview" {
		m.LastSuccessfulRun.WithLabelValues(tag).SetToCurrentTime()
	}
	m.RunsTotal.WithLabelValues(mode, status).Inc()
	m.RunDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordStage records one stage execution.
func (m *Metrics) RecordStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

// RecordBatch records per-batch counters.
func (m *Metrics) RecordBatch(ingested, sanitized, appendFailures int) {
	if m == nil {
		return
	}
	m.SnapshotsIngested.Add(float64(ingested))
	m.SnapshotsSanitized.Add(float64(sanitized))
	m.HistoryAppendFails.Add(float64(appendFailures))
}

// RecordLeaderboard records the shape of a persisted leaderboard.
func (m *Metrics) RecordLeaderboard(tag string, size, warming, trimmed, pruned int) {
	if m == nil {
		return
	}
	m.LeaderboardSize.WithLabelValues(tag).Set(float64(size))
	m.WarmingUpEntries.WithLabelValues(tag).Set(float64(warming))
	m.EntriesTrimmed.Add(float64(trimmed))
	m.EntriesPruned.Add(float64(pruned))
}

// RecordStoreOp records store operation metrics.
func (m *Metrics) RecordStoreOp(store, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StoreOpDuration.WithLabelValues(store, operation).Observe(d.Seconds())
	if err != nil {
		m.StoreOpErrors.WithLabelValues(store, operation).Inc()
	}
}

// RecordPublish records a summary publish attempt.
func (m *Metrics) RecordPublish(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.SummariesPublished.WithLabelValues(status).Inc()
}

// RecordHTTP records a served request.
func (m *Metrics) RecordHTTP(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	if code == http.StatusTooManyRequests {
		m.HTTPRateLimited.Inc()
	}
}
