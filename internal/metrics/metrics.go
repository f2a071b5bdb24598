// Package metrics registers the Prometheus metrics for ingestion and
// question answering, and can expose them over HTTP while a long ingest runs.
//
// All recording methods are safe on a nil *Metrics, so components can be
// built without metrics in tests and one-shot commands.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdfrag"

// Document outcomes.
const (
	DocumentIngested  = "ingested"
	DocumentUnchanged = "unchanged"
	DocumentEmpty     = "empty"
	DocumentFailed    = "failed"
)

// Chunk and question outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds every collector pdfrag owns. Create one per process with New.
type Metrics struct {
	documentsTotal *prometheus.CounterVec
	chunksTotal    *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	questionsTotal *prometheus.CounterVec
	answerDuration prometheus.Histogram
}

// New registers all metrics against reg. promauto.With(reg) keeps tests
// hermetic when they pass a fresh prometheus.Registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents processed by the ingestion pipeline, partitioned by outcome.",
		}, []string{"outcome"}),

		chunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks processed by the ingestion pipeline, partitioned by stage and outcome.",
		}, []string{"stage", "outcome"}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "stage_duration_seconds",
			Help:      "Latency of external calls made while ingesting (extract, embed, upsert).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),

		questionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "questions_total",
			Help:      "Questions answered, partitioned by outcome.",
		}, []string{"outcome"}),

		answerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "answer_duration_seconds",
			Help:      "Wall-clock time from question to answer, including retrieval.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),
	}
}

// Document counts one document outcome.
func (m *Metrics) Document(outcome string) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(outcome).Inc()
}

// Chunk counts one chunk outcome for stage ("embed" or "upsert").
func (m *Metrics) Chunk(stage, outcome string) {
	if m == nil {
		return
	}
	m.chunksTotal.WithLabelValues(stage, outcome).Inc()
}

// ObserveStage records the latency of one external call.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Question counts one question outcome and its latency.
func (m *Metrics) Question(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.questionsTotal.WithLabelValues(outcome).Inc()
	m.answerDuration.Observe(d.Seconds())
}

// Serve exposes gatherer on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics: listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics: serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics: shutdown: %w", err)
		}
		return nil
	}
}
