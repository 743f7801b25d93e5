package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wesleyorama2/imload/internal/loadtest/events"
)

// Prometheus metric names.
const (
	MetricRequestsTotal          = "imload_requests_total"
	MetricRequestDurationSeconds = "imload_request_duration_seconds"
	MetricActiveUsers            = "imload_active_users"
)

// PrometheusExporter serves run metrics on an HTTP endpoint for scraping.
//
// Safe for concurrent use by multiple goroutines.
type PrometheusExporter struct {
	mu sync.Mutex

	addr     string
	path     string
	registry *prometheus.Registry

	requestsTotal          *prometheus.CounterVec
	requestDurationSeconds *prometheus.HistogramVec
	activeUsers            prometheus.Gauge

	server    *http.Server
	ln        net.Listener
	running   bool
	lastError error
}

// NewPrometheusExporter creates an exporter that will listen on addr
// (e.g. ":9646") and serve metrics on /metrics.
func NewPrometheusExporter(addr string) *PrometheusExporter {
	e := &PrometheusExporter{
		addr:     addr,
		path:     "/metrics",
		registry: prometheus.NewRegistry(),
	}

	e.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricRequestsTotal,
			Help: "Total number of HTTP requests issued by virtual users.",
		},
		[]string{"name", "method", "success"},
	)
	e.requestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricRequestDurationSeconds,
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)
	e.activeUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricActiveUsers,
			Help: "Number of running virtual users.",
		},
	)

	e.registry.MustRegister(e.requestsTotal, e.requestDurationSeconds, e.activeUsers)
	return e
}

// Subscribe records every request event published on bus.
func (e *PrometheusExporter) Subscribe(bus *events.Bus) {
	bus.OnRequest(e.RecordRequest)
}

// RecordRequest records one completed request.
func (e *PrometheusExporter) RecordRequest(ev events.RequestEvent) {
	e.requestsTotal.WithLabelValues(ev.Name, ev.Method, strconv.FormatBool(ev.Success())).Inc()
	e.requestDurationSeconds.WithLabelValues(ev.Name).Observe(ev.Duration.Seconds())
}

// SetActiveUsers updates the active users gauge.
func (e *PrometheusExporter) SetActiveUsers(n int) {
	e.activeUsers.Set(float64(n))
}

// Start starts the HTTP server for the metrics endpoint.
func (e *PrometheusExporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		return fmt.Errorf("starting Prometheus exporter: %w", err)
	}
	e.ln = ln

	mux := http.NewServeMux()
	mux.Handle(e.path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.mu.Lock()
			e.lastError = err
			e.mu.Unlock()
		}
	}()

	e.running = true
	return nil
}

// Stop stops the HTTP server.
func (e *PrometheusExporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.running = false

	return e.server.Shutdown(ctx)
}

// Addr returns the listening address once started, else the configured one.
func (e *PrometheusExporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ln != nil {
		return e.ln.Addr().String()
	}
	return e.addr
}

// LastError returns the last error from the HTTP server, if any.
func (e *PrometheusExporter) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}

// Registry returns the Prometheus registry.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}
