package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"subguard/internal/classify"
	"subguard/internal/ensemble"
	"subguard/internal/logging"
	"subguard/internal/media/frames"
	"subguard/internal/services"
	"subguard/internal/textrack"
)

// FrameDetector finds text in one sampled frame image.
type FrameDetector interface {
	DetectFrame(ctx context.Context, path string, frameIndex, frameHeight int) ([]textrack.Detection, error)
}

// FrameSource samples stills from a clip.
type FrameSource interface {
	Sample(ctx context.Context, videoPath string) (*frames.Set, error)
}

// HeightProber reports a clip's frame height in pixels.
type HeightProber func(ctx context.Context, videoPath string) (int, error)

// TrackEngine judges a clip from tracked frame-level text detections.
type TrackEngine struct {
	source     FrameSource
	detector   FrameDetector
	probe      HeightProber
	tracker    textrack.Config
	classifier classify.Classifier
	logger     *slog.Logger
}

// TrackOptions wires a TrackEngine.
type TrackOptions struct {
	Source     FrameSource
	Detector   FrameDetector
	Probe      HeightProber
	Tracker    textrack.Config
	Classifier classify.Classifier
	Logger     *slog.Logger
}

// NewTrackEngine validates opts.
func NewTrackEngine(opts TrackOptions) (*TrackEngine, error) {
	switch {
	case opts.Source == nil:
		return nil, services.Wrap(services.ErrConfiguration, "engine", "track", "frame source is required", nil)
	case opts.Detector == nil:
		return nil, services.Wrap(services.ErrConfiguration, "engine", "track", "frame detector is required", nil)
	case opts.Probe == nil:
		return nil, services.Wrap(services.ErrConfiguration, "engine", "track", "height prober is required", nil)
	case opts.Classifier == nil:
		return nil, services.Wrap(services.ErrConfiguration, "engine", "track", "classifier is required", nil)
	}
	return &TrackEngine{
		source:     opts.Source,
		detector:   opts.Detector,
		probe:      opts.Probe,
		tracker:    opts.Tracker,
		classifier: opts.Classifier,
		logger:     logging.NewComponentLogger(opts.Logger, "track-engine"),
	}, nil
}

// Analyze samples videoPath and returns the classifier's verdict.
func (e *TrackEngine) Analyze(ctx context.Context, videoPath string) (classify.Result, error) {
	logger := logging.WithContext(ctx, e.logger)

	height, err := e.probe(ctx, videoPath)
	if err != nil {
		return classify.Result{}, err
	}
	set, err := e.source.Sample(ctx, videoPath)
	if err != nil {
		return classify.Result{}, err
	}
	defer func() {
		if cerr := set.Close(); cerr != nil {
			logger.Debug("frame cleanup failed", logging.Error(cerr))
		}
	}()

	perFrame := make([][]textrack.Detection, 0, len(set.Frames))
	failed := 0
	var lastErr error
	for _, frame := range set.Frames {
		if err := ctx.Err(); err != nil {
			return classify.Result{}, err
		}
		dets, err := e.detector.DetectFrame(ctx, frame.Path, frame.Index, height)
		if err != nil {
			if errors.Is(err, services.ErrConfiguration) {
				return classify.Result{}, err
			}
			failed++
			lastErr = err
			dets = nil
		}
		perFrame = append(perFrame, dets)
	}
	if len(set.Frames) > 0 && failed == len(set.Frames) {
		return classify.Result{}, services.Wrap(services.ErrDetector, "validate", "track engine",
			fmt.Sprintf("detector failed on all %d frames", failed), lastErr)
	}
	if failed > 0 {
		logging.WarnWithContext(logger, "frame detector failed on some frames", "frame_detect_partial",
			logging.Int("failed_frames", failed),
			logging.Int("total_frames", len(set.Frames)),
			logging.Error(lastErr),
			logging.String(logging.FieldImpact, "failed frames count as frames without text"),
		)
	}

	result, stats := Judge(perFrame, e.tracker, e.classifier, e.logger)
	logger.Info("track analysis complete",
		logging.Int("frames", stats.Frames),
		logging.Int("tracks", stats.Tracks),
		logging.Int("dropped_detections", stats.Dropped),
		logging.Bool("has_subtitles", result.HasSubtitles),
		logging.Float64("confidence", result.Confidence),
		logging.String("decision_logic", result.DecisionLogic),
	)
	return result, nil
}

// Detect implements ensemble.Engine.
func (e *TrackEngine) Detect(ctx context.Context, videoPath string) (ensemble.Vote, error) {
	result, err := e.Analyze(ctx, videoPath)
	if err != nil {
		return ensemble.Vote{}, err
	}
	return VoteFromResult(result), nil
}

// JudgeStats summarizes one tracking run.
type JudgeStats struct {
	Frames  int `json:"frames"`
	Tracks  int `json:"tracks"`
	Dropped int `json:"dropped_detections"`
}

// Judge runs the tracker over per-frame detections and classifies the
// finalized tracks. It is deterministic for identical input.
func Judge(perFrame [][]textrack.Detection, cfg textrack.Config, classifier classify.Classifier, logger *slog.Logger) (classify.Result, JudgeStats) {
	tracker := textrack.NewTracker(cfg, logger)
	for _, dets := range perFrame {
		// AddFrame only fails after Finalize.
		_ = tracker.AddFrame(dets)
	}
	tracks := tracker.Finalize()
	stats := JudgeStats{Frames: tracker.FramesSeen(), Tracks: len(tracks), Dropped: tracker.Dropped()}
	return classifier.Decide(tracks), stats
}

// VoteFromResult converts a classifier verdict into an ensemble vote.
func VoteFromResult(result classify.Result) ensemble.Vote {
	byCategory := make(map[string]int, len(result.TracksByCategory))
	for cat, n := range result.TracksByCategory {
		byCategory[string(cat)] = n
	}
	return ensemble.Vote{
		HasSubtitles: result.HasSubtitles,
		Confidence:   result.Confidence,
		Metadata: map[string]any{
			"reason":             result.Reason,
			"decision_logic":     result.DecisionLogic,
			"classifier":         result.Classifier,
			"tracks_by_category": byCategory,
		},
	}
}
