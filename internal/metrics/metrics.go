// Package metrics provides Prometheus metrics for the artwork uploader.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the artwork uploader.
// All recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	// File metrics
	FilesUploaded *prometheus.CounterVec
	FilesFailed   *prometheus.CounterVec
	BytesUploaded *prometheus.CounterVec

	// Timing metrics
	FileUploadDuration *prometheus.HistogramVec
	RunDuration        prometheus.Histogram

	// Pool metrics
	ActiveTransfers prometheus.Gauge
	WaitingWorkers  prometheus.Gauge

	// Run metrics
	Runs            *prometheus.CounterVec
	OverallProgress prometheus.Gauge

	// Error metrics
	RetryAttempts  *prometheus.CounterVec
	DialErrors     *prometheus.CounterVec
	SkippedTargets prometheus.Counter
	ReportErrors   *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics registered on the
// default Prometheus registry. Call this once at startup.
func Init(namespace string) *Metrics {
	m := New(namespace, prometheus.DefaultRegisterer)
	defaultMetrics = m
	return m
}

// New creates metrics registered on reg without touching the global instance.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "artwork_uploader"
	}
	factory := promauto.With(reg)

	return &Metrics{
		FilesUploaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_uploaded_total",
				Help:      "Total number of files uploaded successfully",
			},
			[]string{"host"},
		),
		FilesFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_failed_total",
				Help:      "Total number of files that failed after all attempts",
			},
			[]string{"host"},
		),
		BytesUploaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_uploaded_total",
				Help:      "Total number of bytes sent to FTP hosts",
			},
			[]string{"host"},
		),
		FileUploadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "file_upload_duration_seconds",
				Help:      "Time to upload one file, including retries",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"host"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Time from run start to completion",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
			},
		),
		ActiveTransfers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_transfers",
				Help:      "Number of batches currently holding an upload slot",
			},
		),
		WaitingWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "waiting_workers",
				Help:      "Number of workers waiting for an upload slot",
			},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of completed runs by result",
			},
			[]string{"result"},
		),
		OverallProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "overall_progress_percent",
				Help:      "Overall progress of the current run",
			},
		),
		RetryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"host"},
		),
		DialErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dial_errors_total",
				Help:      "Total number of failed FTP connection attempts",
			},
			[]string{"host"},
		),
		SkippedTargets: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_destinations_total",
				Help:      "Destinations skipped at batch build time",
			},
		),
		ReportErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_errors_total",
				Help:      "Errors writing run reports, history or notifications",
			},
			[]string{"sink"},
		),
	}
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// RecordFileUploaded records a successful file upload.
func (m *Metrics) RecordFileUploaded(host string, bytes int64, seconds float64) {
	if m == nil {
		return
	}
	m.FilesUploaded.WithLabelValues(host).Inc()
	m.BytesUploaded.WithLabelValues(host).Add(float64(bytes))
	m.FileUploadDuration.WithLabelValues(host).Observe(seconds)
}

// IncFilesFailed increments the failed files counter.
func (m *Metrics) IncFilesFailed(host string) {
	if m == nil {
		return
	}
	m.FilesFailed.WithLabelValues(host).Inc()
}

// IncRetryAttempts increments the retry attempts counter.
func (m *Metrics) IncRetryAttempts(host string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(host).Inc()
}

// IncDialErrors increments the dial errors counter.
func (m *Metrics) IncDialErrors(host string) {
	if m == nil {
		return
	}
	m.DialErrors.WithLabelValues(host).Inc()
}

// IncSkippedDestinations increments the skipped destinations counter.
func (m *Metrics) IncSkippedDestinations() {
	if m == nil {
		return
	}
	m.SkippedTargets.Inc()
}

// AddActiveTransfers adjusts the active transfers gauge.
func (m *Metrics) AddActiveTransfers(delta float64) {
	if m == nil {
		return
	}
	m.ActiveTransfers.Add(delta)
}

// AddWaitingWorkers adjusts the waiting workers gauge.
func (m *Metrics) AddWaitingWorkers(delta float64) {
	if m == nil {
		return
	}
	m.WaitingWorkers.Add(delta)
}

// SetOverallProgress sets the overall progress gauge.
func (m *Metrics) SetOverallProgress(percent float64) {
	if m == nil {
		return
	}
	m.OverallProgress.Set(percent)
}

// RecordRun records a completed run.
func (m *Metrics) RecordRun(anyFailed bool, seconds float64) {
	if m == nil {
		return
	}
	result := "success"
	if anyFailed {
		result = "failed"
	}
	m.Runs.WithLabelValues(result).Inc()
	m.RunDuration.Observe(seconds)
}

// IncReportErrors increments the report errors counter for a sink.
func (m *Metrics) IncReportErrors(sink string) {
	if m == nil {
		return
	}
	m.ReportErrors.WithLabelValues(sink).Inc()
}
