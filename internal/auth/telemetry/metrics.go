// Package telemetry exposes Prometheus collectors for the auth service.
package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures Metrics.
type Options struct {
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Namespace  string
	Buckets    []float64
}

// Metrics holds every collector. All methods are safe on a nil *Metrics so
// services can run without instrumentation in tests.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge

	logins          *prometheus.CounterVec
	mfaSteps        *prometheus.CounterVec
	sessionsIssued  prometheus.Counter
	sessionsRevoked prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the collectors. Collectors that are already registered are
// reused, so New can be called more than once against one registry.
func New(opts Options) (*Metrics, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = "purse"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{gatherer: gatherer}
	var err error

	if m.requests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}

	if m.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Histogram of HTTP request latencies in seconds partitioned by method, route, and status code.",
		Buckets:   buckets,
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}

	if m.inFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})); err != nil {
		return nil, err
	}

	if m.logins, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Primary login attempts partitioned by method and outcome.",
	}, []string{"method", "outcome"})); err != nil {
		return nil, err
	}

	if m.mfaSteps, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "auth",
		Name:      "mfa_steps_total",
		Help:      "MFA setup and challenge steps partitioned by step and outcome.",
	}, []string{"step", "outcome"})); err != nil {
		return nil, err
	}

	if m.sessionsIssued, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "auth",
		Name:      "sessions_issued_total",
		Help:      "Sessions created.",
	})); err != nil {
		return nil, err
	}

	if m.sessionsRevoked, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "auth",
		Name:      "sessions_revoked_total",
		Help:      "Sessions revoked, for any reason.",
	})); err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

// Login counts a primary authentication attempt.
func (m *Metrics) Login(method, outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, outcome).Inc()
}

// MFAStep counts an MFA step such as "setup_confirm" or "backup_code".
func (m *Metrics) MFAStep(step, outcome string) {
	if m == nil {
		return
	}
	m.mfaSteps.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) SessionIssued() {
	if m == nil {
		return
	}
	m.sessionsIssued.Inc()
}

func (m *Metrics) SessionsRevoked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsRevoked.Add(float64(n))
}

// Middleware records request count, latency and concurrency. Routes are
// labelled by mux pattern so path parameters don't explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(rw.status),
		}
		m.requests.With(labels).Inc()
		m.duration.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
