// Package telemetry exposes Prometheus counters for the classification and
// review workflow. Failures the user never sees are recorded here.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry           *prometheus.Registry
	ClassifierFailures *prometheus.CounterVec
	ClassifierDuration prometheus.Histogram
	RunOutcomes        *prometheus.CounterVec
	ClarificationRound prometheus.Counter
	ExceptionQueueSize prometheus.Histogram
	ReviewDecisions    *prometheus.CounterVec
	ConfidenceBoost    prometheus.Histogram
	AssistantFallbacks prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ClassifierFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tariff_classifier_failures_total",
				Help: "Classifier calls that failed or returned nothing",
			},
			[]string{"step"},
		),
		ClassifierDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tariff_classifier_call_duration_seconds",
				Help:    "Classifier call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		RunOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tariff_run_outcomes_total",
				Help: "Classification round outcomes",
			},
			[]string{"outcome"},
		),
		ClarificationRound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tariff_clarification_rounds_total",
				Help: "Clarification questions asked",
			},
		),
		ExceptionQueueSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tariff_exception_queue_size",
				Help:    "Number of exceptions per derived queue",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		ReviewDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tariff_review_decisions_total",
				Help: "Finalized review sessions by decision",
			},
			[]string{"decision"},
		),
		ConfidenceBoost: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tariff_review_confidence_boost_points",
				Help:    "Confidence points gained per evidence submission",
				Buckets: []float64{0, 8, 9, 12, 17, 20, 21, 29},
			},
		),
		AssistantFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tariff_assistant_fallbacks_total",
				Help: "Assistant replies served from canned text because the rulings call failed",
			},
		),
	}

	m.registry.MustRegister(
		m.ClassifierFailures,
		m.ClassifierDuration,
		m.RunOutcomes,
		m.ClarificationRound,
		m.ExceptionQueueSize,
		m.ReviewDecisions,
		m.ConfidenceBoost,
		m.AssistantFallbacks,
	)
	return m
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ClassifierFailed records a silent classifier failure.
func (m *Metrics) ClassifierFailed(step string) {
	if m == nil {
		return
	}
	m.ClassifierFailures.WithLabelValues(step).Inc()
}

// ObserveClassifierCall records how long a classifier call took.
func (m *Metrics) ObserveClassifierCall(d time.Duration) {
	if m == nil {
		return
	}
	m.ClassifierDuration.Observe(d.Seconds())
}

// RunOutcome counts the result of one classification round.
func (m *Metrics) RunOutcome(outcome string) {
	if m == nil {
		return
	}
	m.RunOutcomes.WithLabelValues(outcome).Inc()
}

// QuestionAsked counts a clarification question.
func (m *Metrics) QuestionAsked() {
	if m == nil {
		return
	}
	m.ClarificationRound.Inc()
}

// QueueDerived records the size of a derived exception queue.
func (m *Metrics) QueueDerived(size int) {
	if m == nil {
		return
	}
	m.ExceptionQueueSize.Observe(float64(size))
}

// ReviewDecision counts a finalized review session.
func (m *Metrics) ReviewDecision(decision string) {
	if m == nil {
		return
	}
	m.ReviewDecisions.WithLabelValues(decision).Inc()
}

// ConfidenceRaised records the points gained from one evidence submission.
func (m *Metrics) ConfidenceRaised(points int) {
	if m == nil {
		return
	}
	m.ConfidenceBoost.Observe(float64(points))
}

// AssistantFellBack counts a canned assistant reply served after a failed rulings call.
func (m *Metrics) AssistantFellBack() {
	if m == nil {
		return
	}
	m.AssistantFallbacks.Inc()
}

// Serve exposes /metrics on addr until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
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
