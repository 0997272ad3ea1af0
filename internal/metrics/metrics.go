// Package metrics exposes Prometheus metrics for queries and corpus builds.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdfquery"

// Metrics holds the process registry and collectors
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	retrievedChunks   *prometheus.HistogramVec
	confidence        prometheus.Histogram
	buildsTotal       *prometheus.CounterVec
	buildDuration     prometheus.Histogram
	corpusChunks      prometheus.Gauge
	corpusDocuments   prometheus.Gauge
}

// New creates a registry with every collector registered
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "requests_total",
				Help:      "Total queries by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		retrievalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "duration_seconds",
				Help:      "Query handling duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		retrievedChunks: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "retrieved_chunks",
				Help:      "Distribution of retrieved chunks per query.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"mode"},
		),
		confidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "confidence_score",
				Help:      "Heuristic confidence of generated answers.",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		buildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "corpus",
				Name:      "builds_total",
				Help:      "Corpus builds by status.",
			},
			[]string{"status"},
		),
		buildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "corpus",
				Name:      "build_duration_seconds",
				Help:      "Corpus build duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
		corpusChunks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "corpus",
				Name:      "chunks",
				Help:      "Chunks in the current corpus.",
			},
		),
		corpusDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "corpus",
				Name:      "documents",
				Help:      "Documents indexed in the current corpus.",
			},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.retrievalDuration,
		m.retrievedChunks,
		m.confidence,
		m.buildsTotal,
		m.buildDuration,
		m.corpusChunks,
		m.corpusDocuments,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordQuery records one query. outcome is "results", "empty" or an error code.
func (m *Metrics) RecordQuery(mode, outcome string, chunks int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(mode, outcome).Inc()
	m.retrievalDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.retrievedChunks.WithLabelValues(mode).Observe(float64(chunks))
}

// RecordConfidence records the confidence attached to an answer
func (m *Metrics) RecordConfidence(score float64) {
	if m == nil {
		return
	}
	m.confidence.Observe(score)
}

// RecordBuild records a finished build attempt
func (m *Metrics) RecordBuild(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.buildsTotal.WithLabelValues(status).Inc()
	m.buildDuration.Observe(duration.Seconds())
}

// SetCorpusSize records the size of the loaded corpus
func (m *Metrics) SetCorpusSize(documents, chunks int) {
	if m == nil {
		return
	}
	m.corpusDocuments.Set(float64(documents))
	m.corpusChunks.Set(float64(chunks))
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
