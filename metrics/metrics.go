// ABOUTME: Prometheus collectors for sync cycles, ingestion, merging, and schedule checks
// ABOUTME: Serves /metrics and /health on an optional listen address
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "leadsync"

// Metrics holds every leadsync collector.
type Metrics struct {
	Cycles          *prometheus.CounterVec
	RecordsIngested prometheus.Counter
	RowsSkipped     prometheus.Counter
	RowsAppended    prometheus.Counter
	Duplicates      prometheus.Counter
	MergeFailures   prometheus.Counter
	CycleDuration   prometheus.Histogram
	ScheduleChecks  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is handy for one-shot commands.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Sync cycles executed, by final status",
		}, []string{"status"}),
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Lead records produced by the ingestor",
		}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Attachment lines rejected as malformed",
		}),
		RowsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_appended_total",
			Help:      "Rows appended to the destination sheet",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_total",
			Help:      "Incoming rows dropped as duplicates",
		}),
		MergeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_failures_total",
			Help:      "Merges that failed and fell back to a flat-file export",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one sync cycle",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		ScheduleChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_checks_total",
			Help:      "Schedule gate evaluations, by result",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Cycles,
			m.RecordsIngested,
			m.RowsSkipped,
			m.RowsAppended,
			m.Duplicates,
			m.MergeFailures,
			m.CycleDuration,
			m.ScheduleChecks,
		)
	}
	return m
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(status string, elapsed time.Duration) {
	m.Cycles.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(elapsed.Seconds())
}

// ObserveIngest records the outcome of one attachment ingestion.
func (m *Metrics) ObserveIngest(records, skipped int) {
	m.RecordsIngested.Add(float64(records))
	m.RowsSkipped.Add(float64(skipped))
}

// ObserveMerge records one merge result.
func (m *Metrics) ObserveMerge(appended, duplicates int, ok bool) {
	m.RowsAppended.Add(float64(appended))
	m.Duplicates.Add(float64(duplicates))
	if !ok {
		m.MergeFailures.Inc()
	}
}

// ObserveScheduleCheck records whether the gate allowed a run.
func (m *Metrics) ObserveScheduleCheck(run bool) {
	result := "skip"
	if run {
		result = "run"
	}
	m.ScheduleChecks.WithLabelValues(result).Inc()
}

// Handler returns the mux served by Serve.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting metrics server", zap.String("address", addr))
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop metrics server: %w", err)
		}
		return nil
	}
}
