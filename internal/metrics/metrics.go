// Package metrics exposes Prometheus instrumentation for the validation pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Validation results.
const (
	ResultApproved = "approved"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Pipeline stages.
const (
	StageFetch     = "fetch"
	StageExtract   = "extract"
	StageAnalyze   = "analyze"
	StageReconcile = "reconcile"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	validations   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	fetchDuration *prometheus.HistogramVec
	storeErrors   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipt_validations_total",
				Help: "Receipt validations by result.",
			},
			[]string{"result"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "receipt_validation_stage_duration_seconds",
				Help:    "Duration of each validation pipeline stage in seconds.",
				Buckets: []float64{0.001, 0.010, 0.100, 0.250, 0.500, 1, 2, 5, 10, 15, 30},
			},
			[]string{"stage"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "receipt_fetch_request_duration_seconds",
				Help:    "Duration of receipt downloads in seconds.",
				Buckets: []float64{0.010, 0.100, 0.250, 0.500, 1, 2, 5, 10, 15},
			},
			[]string{"scheme", "status_code"},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipt_store_errors_total",
				Help: "Record store failures during reconciliation.",
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(m.validations, m.stageDuration, m.fetchDuration, m.storeErrors)

	return m
}

// ObserveValidation counts one finished validation.
func (m *Metrics) ObserveValidation(result string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(result).Inc()
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveFetch records a download. statusCode is 0 when no response arrived.
func (m *Metrics) ObserveFetch(scheme string, statusCode int, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(scheme, strconv.Itoa(statusCode)).Observe(d.Seconds())
}

// IncStoreError counts a failed store operation.
func (m *Metrics) IncStoreError(operation string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(operation).Inc()
}
