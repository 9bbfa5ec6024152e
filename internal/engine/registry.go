package engine

import (
	"context"
	"fmt"
	"log/slog"

	"subguard/internal/classify"
	"subguard/internal/config"
	"subguard/internal/ensemble"
	"subguard/internal/media/ffprobe"
	"subguard/internal/media/frames"
	"subguard/internal/ocr"
	"subguard/internal/services"
	"subguard/internal/textrack"
)

// Engine kinds accepted in ensemble.engines.
const (
	KindOCRTracker = "ocr-tracker"
	KindCommand    = "command"
)

// TrackerConfig maps the tracker config section onto textrack.Config.
func TrackerConfig(cfg config.Tracker) textrack.Config {
	return textrack.Config{
		IoUThreshold:         cfg.IoUThreshold,
		MaxDistancePx:        cfg.MaxDistancePx,
		SampleFPS:            cfg.SampleFPS,
		TextSimilarityCutoff: cfg.TextSimilarityCutoff,
		PositionVarianceNorm: cfg.PositionVarianceNorm,
	}
}

// ProbeHeight returns a HeightProber backed by ffprobe.
func ProbeHeight(binary string) HeightProber {
	return func(ctx context.Context, videoPath string) (int, error) {
		result, err := ffprobe.Inspect(ctx, binary, videoPath)
		if err != nil {
			return 0, err
		}
		height := result.FrameHeight()
		if height <= 0 {
			return 0, services.Wrap(services.ErrValidation, "validate", "probe", "clip has no video stream", nil)
		}
		return height, nil
	}
}

// NewTrackEngineFromConfig wires ffprobe, the ffmpeg frame sampler, the
// tesseract detector, the tracker, and the configured classifier.
func NewTrackEngineFromConfig(cfg *config.Config, logger *slog.Logger) (*TrackEngine, error) {
	if !ocr.Available() {
		return nil, services.Wrap(services.ErrConfiguration, "engine", KindOCRTracker, "", ocr.ErrUnavailable)
	}
	classifier, err := classify.New(classify.OptionsFromConfig(cfg.Classifier))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "engine", KindOCRTracker, "", err)
	}
	tracker := TrackerConfig(cfg.Tracker)
	return NewTrackEngine(TrackOptions{
		Source:     frames.NewSampler(cfg.Pipeline.FFmpegBinary, tracker.SampleFPS, "", logger),
		Detector:   ocr.New(ocr.Options{Languages: cfg.OCR.Languages, MinConfidence: cfg.OCR.MinConfidence}),
		Probe:      ProbeHeight(cfg.Pipeline.FFprobeBinary),
		Tracker:    tracker,
		Classifier: classifier,
		Logger:     logger,
	})
}

// Builder constructs an engine for one configured member. Tests swap it to
// avoid native dependencies.
type Builder func(cfg *config.Config, member config.Engine, logger *slog.Logger) (ensemble.Engine, error)

// DefaultBuilder understands the ocr-tracker and command kinds.
func DefaultBuilder(cfg *config.Config, member config.Engine, logger *slog.Logger) (ensemble.Engine, error) {
	switch member.Kind {
	case KindOCRTracker:
		return NewTrackEngineFromConfig(cfg, logger)
	case KindCommand:
		return NewCommandEngine(member.Name, member.Command, member.Args, logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "engine", member.Name,
			fmt.Sprintf("unsupported kind %q", member.Kind), nil)
	}
}

// BuildRegistry registers every configured ensemble engine. A nil build uses
// DefaultBuilder.
func BuildRegistry(cfg *config.Config, build Builder, logger *slog.Logger) (*ensemble.Registry, error) {
	if build == nil {
		build = DefaultBuilder
	}
	reg := ensemble.NewRegistry()
	for _, member := range cfg.Ensemble.Engines {
		eng, err := build(cfg, member, logger)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(ensemble.Member{
			Name:    member.Name,
			Weight:  member.Weight,
			Timeout: member.EngineTimeout(cfg.DetectTimeout()),
			Engine:  eng,
		}); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "engine", member.Name, "", err)
		}
	}
	return reg, nil
}
