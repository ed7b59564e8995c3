// Package metrics exposes pipeline and mempool collectors over HTTP.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/mev-protocol/sandwich/pkg/types"
)

// Config for the metrics endpoint
type Config struct {
	Addr string
	Path string
}

// Metrics holds every collector the node reports
type Metrics struct {
	registry *prometheus.Registry

	attempts       *prometheus.CounterVec
	stageSeconds   *prometheus.HistogramVec
	revenue        prometheus.Histogram
	pendingSeen    prometheus.Counter
	pendingDropped prometheus.Counter
	queueDepth     prometheus.Gauge
}

// New creates collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sandwich_attempts_total",
			Help: "Pending transaction evaluations by final outcome.",
		}, []string{"outcome"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sandwich_stage_seconds",
			Help:    "Time from receipt of a pending hash to reaching each stage.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"stage"}),
		revenue: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sandwich_gross_revenue_eth",
			Help:    "Gross revenue of submitted sandwiches in ETH.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		pendingSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mempool_pending_seen_total",
			Help: "Distinct pending transaction hashes received.",
		}),
		pendingDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mempool_pending_dropped_total",
			Help: "Pending hashes dropped because the work queue was full.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mempool_queue_depth",
			Help: "Pending hashes waiting for a worker.",
		}),
	}

	m.registry.MustRegister(
		m.attempts,
		m.stageSeconds,
		m.revenue,
		m.pendingSeen,
		m.pendingDropped,
		m.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, r := range types.AllReasons() {
		m.attempts.WithLabelValues(r.String())
	}
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Outcome counts a finished evaluation
func (m *Metrics) Outcome(reason types.AbortReason) {
	m.attempts.WithLabelValues(reason.String()).Inc()
}

// Stage records the time taken to reach stage
func (m *Metrics) Stage(stage types.Stage, elapsed time.Duration) {
	m.stageSeconds.WithLabelValues(stage.String()).Observe(elapsed.Seconds())
}

// Revenue records the gross revenue of a submitted bundle
func (m *Metrics) Revenue(eth float64) {
	m.revenue.Observe(eth)
}

// PendingSeen counts a new pending hash
func (m *Metrics) PendingSeen() { m.pendingSeen.Inc() }

// PendingDropped counts a hash dropped on a full queue
func (m *Metrics) PendingDropped() { m.pendingDropped.Inc() }

// QueueDepth sets the current queue length
func (m *Metrics) QueueDepth(n int) { m.queueDepth.Set(float64(n)) }

// Serve exposes the registry until ctx is done
func (m *Metrics) Serve(ctx context.Context, cfg Config) error {
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Addr).Str("path", cfg.Path).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
