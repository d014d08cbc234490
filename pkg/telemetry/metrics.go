package telemetry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the opwatch engine.
type Metrics struct {
	config MetricsConfig

	serverMu sync.Mutex
	server   *http.Server
	addr     string

	// Submission metrics
	mutationsSubmitted *prometheus.CounterVec
	submissionFailures *prometheus.CounterVec

	// Outcome metrics
	mutationsCompleted *prometheus.CounterVec
	mutationDuration   *prometheus.HistogramVec

	// Polling metrics
	pollRounds        prometheus.Counter
	pollRoundDuration prometheus.Histogram
	pollErrors        *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// System metrics
	trackedMutations prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Submission metrics
		mutationsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_submitted_total",
				Help:      "Total number of mutations accepted by the control plane",
			},
			[]string{"operation", "resource_type"},
		),
		submissionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submission_failures_total",
				Help:      "Total number of mutations rejected at submission",
			},
			[]string{"operation", "resource_type"},
		),

		// Outcome metrics
		mutationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_completed_total",
				Help:      "Total number of mutations that reached a terminal status",
			},
			[]string{"operation", "status"},
		),
		mutationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mutation_duration_seconds",
				Help:      "Time from submission to terminal status in seconds",
				Buckets:   buckets,
			},
			[]string{"operation", "resource_type"},
		),

		// Polling metrics
		pollRounds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_rounds_total",
				Help:      "Total number of completed polling rounds",
			},
		),
		pollRoundDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_round_duration_seconds",
				Help:      "Duration of a single polling round in seconds",
				Buckets:   buckets,
			},
		),
		pollErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_errors_total",
				Help:      "Total number of status poll failures",
			},
			[]string{"class"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		// System metrics
		trackedMutations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tracked_mutations",
				Help:      "Current number of in-flight tracked mutations",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.mutationsSubmitted,
		m.submissionFailures,
		m.mutationsCompleted,
		m.mutationDuration,
		m.pollRounds,
		m.pollRoundDuration,
		m.pollErrors,
		m.errorsByClass,
		m.errorsByCode,
		m.trackedMutations,
	)

	return m, nil
}

// Submission Metrics

// RecordSubmission increments the counter for accepted submissions.
func (m *Metrics) RecordSubmission(operation, resourceType string) {
	if m.mutationsSubmitted == nil {
		return
	}
	m.mutationsSubmitted.WithLabelValues(operation, resourceType).Inc()
}

// RecordSubmissionFailure increments the counter for rejected submissions.
func (m *Metrics) RecordSubmissionFailure(operation, resourceType string) {
	if m.submissionFailures == nil {
		return
	}
	m.submissionFailures.WithLabelValues(operation, resourceType).Inc()
}

// Outcome Metrics

// RecordCompletion records a mutation that reached a terminal status.
func (m *Metrics) RecordCompletion(operation, resourceType, status string, duration time.Duration) {
	if m.mutationsCompleted == nil {
		return
	}
	m.mutationsCompleted.WithLabelValues(operation, status).Inc()
	m.mutationDuration.WithLabelValues(operation, resourceType).Observe(duration.Seconds())
}

// Polling Metrics

// RecordPollRound records a completed polling round over the given number
// of tracked mutations. The poll round is the single owner of the
// tracked-mutations gauge; its snapshot count is authoritative.
func (m *Metrics) RecordPollRound(tracked int, duration time.Duration) {
	if m.pollRounds == nil {
		return
	}
	m.pollRounds.Inc()
	m.pollRoundDuration.Observe(duration.Seconds())
	m.trackedMutations.Set(float64(tracked))
}

// RecordPollError records a status poll failure by error class.
func (m *Metrics) RecordPollError(class string) {
	if m.pollErrors == nil {
		return
	}
	m.pollErrors.WithLabelValues(class).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// System Metrics

// SetTrackedMutations sets the current number of tracked mutations.
func (m *Metrics) SetTrackedMutations(count float64) {
	if m.trackedMutations == nil {
		return
	}
	m.trackedMutations.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. It is a no-op
// when metrics are disabled or a server is already running.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	m.serverMu.Lock()
	defer m.serverMu.Unlock()

	if m.server != nil {
		return nil
	}

	listener, err := net.Listen("tcp", m.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.ListenAddress, err)
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	m.server = server
	m.addr = listener.Addr().String()

	go func() {
		_ = server.Serve(listener)
	}()

	return nil
}

// StopMetricsServer gracefully shuts the metrics server down. Safe to call
// when no server is running.
func (m *Metrics) StopMetricsServer(ctx context.Context) error {
	m.serverMu.Lock()
	server := m.server
	m.server = nil
	m.addr = ""
	m.serverMu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// ListenAddr returns the bound address of the running metrics server, empty
// when the server is not running. With a ":0" listen address this is where
// the ephemeral port shows up.
func (m *Metrics) ListenAddr() string {
	m.serverMu.Lock()
	defer m.serverMu.Unlock()
	return m.addr
}
