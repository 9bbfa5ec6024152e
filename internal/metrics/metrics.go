// Package metrics exposes pipeline and ensemble measurements in Prometheus
// format. A nil *Recorder is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"subguard/internal/logging"
)

const namespace = "subguard"

// Recorder owns a private registry so tests and multiple pipelines in one
// process never collide on the global one.
type Recorder struct {
	registry *prometheus.Registry

	verdicts        *prometheus.CounterVec
	stageFailures   *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	engineOutcomes  *prometheus.CounterVec
	engineDuration  *prometheus.HistogramVec
	transcodes      prometheus.Gauge
	cleanupRemovals prometheus.Counter
}

// New builds a Recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Clip verdicts by outcome and whether they came from the status store",
			},
			[]string{"verdict", "cached"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_failures_total",
				Help:      "Pipeline stage failures by stage and error kind",
			},
			[]string{"stage", "kind"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900},
			},
			[]string{"stage"},
		),
		engineOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ensemble",
				Name:      "engine_outcomes_total",
				Help:      "Detector engine calls by engine and outcome",
			},
			[]string{"engine", "outcome"},
		),
		engineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ensemble",
				Name:      "engine_duration_seconds",
				Help:      "Detector engine call duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"engine"},
		),
		transcodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "transcodes_in_flight",
			Help:      "Transcodes currently holding a concurrency slot",
		}),
		cleanupRemovals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "orphan_files_removed_total",
			Help:      "Files removed by orphan cleanup sweeps",
		}),
	}
	r.registry.MustRegister(
		r.verdicts,
		r.stageFailures,
		r.stageDuration,
		r.engineOutcomes,
		r.engineDuration,
		r.transcodes,
		r.cleanupRemovals,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) StageDuration(stage string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (r *Recorder) StageFailure(stage, kind string) {
	if r == nil {
		return
	}
	r.stageFailures.WithLabelValues(stage, kind).Inc()
}

func (r *Recorder) Verdict(verdict string, cached bool) {
	if r == nil {
		return
	}
	r.verdicts.WithLabelValues(verdict, strconv.FormatBool(cached)).Inc()
}

func (r *Recorder) TranscodesInFlight(delta int) {
	if r == nil {
		return
	}
	r.transcodes.Add(float64(delta))
}

func (r *Recorder) CleanupRemoved(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.cleanupRemovals.Add(float64(count))
}

// EngineOutcome implements ensemble.Observer.
func (r *Recorder) EngineOutcome(engine, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.engineOutcomes.WithLabelValues(engine, outcome).Inc()
	r.engineDuration.WithLabelValues(engine).Observe(elapsed.Seconds())
}

// Serve exposes /metrics on bind until ctx is done.
func Serve(ctx context.Context, bind string, r *Recorder, logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "metrics_listen"),
	)
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
