package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"subguard/internal/config"
	"subguard/internal/logging"
	"subguard/internal/pipeline"
	"subguard/internal/services"
)

// Processor is the pipeline surface the Manager drives.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error)
	CleanupOrphanedFiles(ctx context.Context, maxAge time.Duration) pipeline.CleanupResult
}

// Options sizes the worker pool and the orphan sweep.
type Options struct {
	Workers         int
	CleanupInterval time.Duration
	OrphanMaxAge    time.Duration
}

// OptionsFromConfig copies the worker settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		Workers:         cfg.Pipeline.Workers,
		CleanupInterval: cfg.CleanupInterval(),
		OrphanMaxAge:    cfg.OrphanMaxAge(),
	}
}

// Report is the result for one request in a batch.
type Report struct {
	RequestID string
	Request   pipeline.Request
	Outcome   pipeline.Outcome
	Err       error
}

// Manager coordinates concurrent clip processing.
type Manager struct {
	processor Processor
	opts      Options
	logger    *slog.Logger
	newID     func() string
}

// NewManager constructs a Manager. Workers below one run clips sequentially.
func NewManager(processor Processor, opts Options, logger *slog.Logger) *Manager {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Manager{
		processor: processor,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		newID:     uuid.NewString,
	}
}

// Run processes every request with at most Options.Workers in flight and
// returns one Report per request, in request order. Once ctx ends no new
// clip is admitted; clips not started are reported as failed with the
// context error.
func (m *Manager) Run(ctx context.Context, requests []pipeline.Request) []Report {
	reports := make([]Report, len(requests))
	start := time.Now()
	m.logger.Info("batch started",
		logging.Int("clips", len(requests)),
		logging.Int("workers", m.opts.Workers),
		logging.String(logging.FieldEventType, "batch_start"),
	)

	var g errgroup.Group
	g.SetLimit(m.opts.Workers)
	for i, req := range requests {
		reports[i] = Report{RequestID: m.newID(), Request: req}
		if ctx.Err() != nil {
			reports[i].Outcome = notStarted(req)
			reports[i].Err = skipped(ctx)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				reports[i].Outcome = notStarted(req)
				reports[i].Err = skipped(ctx)
				return nil
			}
			reports[i].Outcome, reports[i].Err = m.runOne(ctx, reports[i].RequestID, req)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summarize(reports)
	m.logger.Info("batch completed",
		logging.Int("approved", summary.Approved),
		logging.Int("rejected", summary.Rejected),
		logging.Int("cached", summary.Cached),
		logging.Int("failed", summary.Failed),
		logging.Int("retryable", summary.Retryable),
		logging.Duration("elapsed", time.Since(start)),
		logging.String(logging.FieldEventType, "batch_complete"),
	)
	return reports
}

func (m *Manager) runOne(ctx context.Context, requestID string, req pipeline.Request) (pipeline.Outcome, error) {
	ctx = services.WithRequestID(ctx, requestID)
	ctx = services.WithVideoID(ctx, req.VideoID)
	logger := logging.WithContext(ctx, m.logger)

	out, err := m.processor.Process(ctx, req)
	if err != nil {
		logging.WarnWithContext(logger, "clip not judged", "clip_failed",
			logging.String("source", req.SourcePath),
			logging.String("error_kind", services.Kind(err)),
			logging.Bool("retryable", services.Retryable(err)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, errorHint(err)),
			logging.String(logging.FieldImpact, "clip left unjudged"),
		)
		return out, err
	}
	logger.Debug("clip finished", logging.String("outcome", out.Describe()))
	return out, nil
}

// CleanupLoop sweeps orphaned files immediately and then every
// CleanupInterval until ctx ends. A non-positive interval disables it.
func (m *Manager) CleanupLoop(ctx context.Context) {
	if m.opts.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		m.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	res := m.processor.CleanupOrphanedFiles(ctx, m.opts.OrphanMaxAge)
	if len(res.Removed) == 0 && len(res.Errors) == 0 {
		return
	}
	m.logger.Info("orphan sweep finished",
		logging.Int("removed", len(res.Removed)),
		logging.Int("abandoned_jobs", len(res.Abandoned)),
		logging.Int("errors", len(res.Errors)),
		logging.String(logging.FieldEventType, "orphan_sweep"),
	)
}

func notStarted(req pipeline.Request) pipeline.Outcome {
	return pipeline.Outcome{VideoID: req.VideoID, State: pipeline.StateFailed}
}

func skipped(ctx context.Context) error {
	return services.Wrap(services.ErrTransient, "queued", "admit clip", "batch stopped before clip started", ctx.Err())
}

func errorHint(err error) string {
	switch services.Kind(err) {
	case "timeout":
		return "raise pipeline.transcode_timeout or pipeline.detect_timeout"
	case "external_tool":
		return "run subguard doctor and inspect the tool output above"
	case "detector":
		return "check detector engine configuration and logs"
	case "store":
		return "check the status database with subguard status"
	case "not_found":
		return "confirm the source file still exists"
	case "validation":
		return "rename the file so its stem is a valid video id"
	default:
		return "re-run the batch to retry"
	}
}
