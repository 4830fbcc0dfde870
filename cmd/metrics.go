package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrSnapshotStale is reported by the readiness check when snapshots stop arriving
var ErrSnapshotStale = errors.New("no snapshot written recently")

// readinessFactor is how many poll intervals may pass without a snapshot
const readinessFactor = 3

// Metrics holds the collector's prometheus collectors
type Metrics struct {
	registry     *prometheus.Registry
	snapshots    prometheus.Counter
	rows         prometheus.Counter
	fetchErrors  prometheus.Counter
	reconnects   prometheus.Counter
	outputBytes  prometheus.Counter
	lastSnapshot prometheus.Gauge

	lastSnapshotNanos atomic.Int64
	pollInterval      time.Duration
	now               func() time.Time
}

// NewMetrics registers the collector metrics on a fresh registry
func NewMetrics(pollInterval time.Duration) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		snapshots: factory.NewCounter(prometheus.CounterOpts{
			Name: "pgactivity_snapshots_total",
			Help: "Snapshots written to the output file",
		}),
		rows: factory.NewCounter(prometheus.CounterOpts{
			Name: "pgactivity_rows_total",
			Help: "pg_stat_activity rows written to the output file",
		}),
		fetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pgactivity_fetch_errors_total",
			Help: "Failed executions of the activity query",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "pgactivity_reconnects_total",
			Help: "Sessions reopened after a fetch error",
		}),
		outputBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "pgactivity_output_bytes_total",
			Help: "Compressed bytes written to the output file",
		}),
		lastSnapshot: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pgactivity_last_snapshot_timestamp_seconds",
			Help: "Unix time of the last written snapshot",
		}),
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// ObserveSnapshot records one written and flushed snapshot
func (m *Metrics) ObserveSnapshot(rows int, outputBytes int64, at time.Time) {
	m.snapshots.Inc()
	m.rows.Add(float64(rows))
	if outputBytes > 0 {
		m.outputBytes.Add(float64(outputBytes))
	}
	m.lastSnapshot.Set(float64(at.Unix()) + float64(at.Nanosecond())/float64(time.Second))
	m.lastSnapshotNanos.Store(at.UnixNano())
}

// FetchFailed records one failed fetch
func (m *Metrics) FetchFailed() {
	m.fetchErrors.Inc()
}

// Reconnected records one replaced session
func (m *Metrics) Reconnected() {
	m.reconnects.Inc()
}

// Ready fails once a snapshot has been seen and none followed within three poll intervals
func (m *Metrics) Ready() error {
	last := m.lastSnapshotNanos.Load()
	if last == 0 {
		return nil
	}
	age := m.now().Sub(time.Unix(0, last))
	if age > readinessFactor*m.pollInterval {
		return fmt.Errorf("%w: last one %s ago", ErrSnapshotStale, age.Round(time.Second))
	}
	return nil
}

// Handler serves /metrics, /live and /ready
func (m *Metrics) Handler() http.Handler {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(100))
	health.AddReadinessCheck("recent-snapshot", m.Ready)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.Handle("/live", health)
	mux.Handle("/ready", health)
	return mux
}

// MetricsServer is the optional HTTP endpoint for metrics and health
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// StartMetricsServer listens on addr and serves m in the background
func StartMetricsServer(addr string, m *Metrics, logger *slog.Logger) (*MetricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	s := &MetricsServer{
		server: &http.Server{
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Debug("serving metrics", "addr", ln.Addr().String())

	return s, nil
}

// Addr returns the address the server listens on
func (s *MetricsServer) Addr() string {
	return s.listener.Addr().String()
}

// Close stops the server, waiting briefly for in-flight requests
func (s *MetricsServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("stopping metrics server failed", "error", err)
	}
}
