package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTracker(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateEnsemble(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if c.OCR.MinConfidence < 0 || c.OCR.MinConfidence > 1 {
		return errors.New("ocr.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validatePaths() error {
	required := []struct {
		key   string
		value string
	}{
		{"paths.transform_dir", c.Paths.TransformDir},
		{"paths.validate_dir", c.Paths.ValidateDir},
		{"paths.approved_dir", c.Paths.ApprovedDir},
		{"paths.state_dir", c.Paths.StateDir},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%s must be set", field.key)
		}
	}
	return nil
}

func (c *Config) validateTracker() error {
	if err := ensureUnitMap(map[string]float64{
		"tracker.iou_threshold":          c.Tracker.IoUThreshold,
		"tracker.text_similarity_cutoff": c.Tracker.TextSimilarityCutoff,
	}); err != nil {
		return err
	}
	if c.Tracker.MaxDistancePx <= 0 {
		return errors.New("tracker.max_distance_px must be positive")
	}
	if c.Tracker.SampleFPS <= 0 {
		return errors.New("tracker.sample_fps must be positive")
	}
	if c.Tracker.PositionVarianceNorm <= 0 {
		return errors.New("tracker.position_variance_norm must be positive")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	switch c.Classifier.Strategy {
	case "rule", "weighted":
	default:
		return fmt.Errorf("classifier.strategy: unsupported value %q (want rule or weighted)", c.Classifier.Strategy)
	}
	if err := ensureUnitMap(map[string]float64{
		"classifier.static_min_presence":      c.Classifier.StaticMinPresence,
		"classifier.static_max_change":        c.Classifier.StaticMaxChange,
		"classifier.subtitle_min_change_rate": c.Classifier.SubtitleMinChangeRate,
		"classifier.subtitle_score_threshold": c.Classifier.SubtitleScoreThreshold,
	}); err != nil {
		return err
	}
	if c.Classifier.ScreencastMinDetections <= 0 {
		return errors.New("classifier.screencast_min_detections must be positive")
	}
	return nil
}

func (c *Config) validateEnsemble() error {
	switch c.Ensemble.Strategy {
	case "weighted", "majority", "unanimous":
	default:
		return fmt.Errorf("ensemble.strategy: unsupported value %q (want weighted, majority, or unanimous)", c.Ensemble.Strategy)
	}
	if c.Ensemble.ConflictThreshold < 0 || c.Ensemble.ConflictThreshold > 1 {
		return errors.New("ensemble.conflict_threshold must be between 0 and 1")
	}
	seen := make(map[string]struct{}, len(c.Ensemble.Engines))
	for i, engine := range c.Ensemble.Engines {
		prefix := fmt.Sprintf("ensemble.engines[%d]", i)
		if engine.Name == "" {
			return fmt.Errorf("%s.name must be set", prefix)
		}
		if _, dup := seen[engine.Name]; dup {
			return fmt.Errorf("%s.name %q is duplicated", prefix, engine.Name)
		}
		seen[engine.Name] = struct{}{}
		if engine.Weight <= 0 || engine.Weight > 1 {
			return fmt.Errorf("%s.weight must be greater than 0 and at most 1", prefix)
		}
		if engine.TimeoutSeconds < 0 {
			return fmt.Errorf("%s.timeout_seconds must be >= 0", prefix)
		}
		switch engine.Kind {
		case "ocr-tracker":
		case "command":
			if engine.Command == "" {
				return fmt.Errorf("%s.command must be set for command engines", prefix)
			}
		default:
			return fmt.Errorf("%s.kind: unsupported value %q (want ocr-tracker or command)", prefix, engine.Kind)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.workers":                   c.Pipeline.Workers,
		"pipeline.max_concurrent_transcodes": c.Pipeline.MaxConcurrentTranscodes,
		"pipeline.transcode_timeout":         c.Pipeline.TranscodeTimeout,
		"pipeline.detect_timeout":            c.Pipeline.DetectTimeout,
		"pipeline.orphan_max_age_hours":      c.Pipeline.OrphanMaxAgeHours,
		"pipeline.cleanup_interval":          c.Pipeline.CleanupInterval,
		"pipeline.target_height":             c.Pipeline.TargetHeight,
	}); err != nil {
		return err
	}
	switch c.Pipeline.Transcoder {
	case "ffmpeg", "drapto":
	default:
		return fmt.Errorf("pipeline.transcoder: unsupported value %q (want ffmpeg or drapto)", c.Pipeline.Transcoder)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for _, key := range sortedKeys(values) {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func ensureUnitMap(values map[string]float64) error {
	for _, key := range sortedKeys(values) {
		if v := values[key]; v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	return nil
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
