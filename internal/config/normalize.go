package config

import (
	"fmt"
	"strings"

	"subguard/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeClassifier()
	c.normalizeEnsemble()
	c.normalizePipeline()
	c.normalizeOCR()
	c.normalizeLogging()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key   string
		value *string
	}{
		{"paths.transform_dir", &c.Paths.TransformDir},
		{"paths.validate_dir", &c.Paths.ValidateDir},
		{"paths.approved_dir", &c.Paths.ApprovedDir},
		{"paths.state_dir", &c.Paths.StateDir},
		{"paths.log_dir", &c.Paths.LogDir},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeClassifier() {
	c.Classifier.Strategy = strings.ToLower(strings.TrimSpace(c.Classifier.Strategy))
	if c.Classifier.Strategy == "" {
		c.Classifier.Strategy = defaultClassifierStrategy
	}
}

func (c *Config) normalizeEnsemble() {
	c.Ensemble.Strategy = strings.ToLower(strings.TrimSpace(c.Ensemble.Strategy))
	if c.Ensemble.Strategy == "" {
		c.Ensemble.Strategy = defaultEnsembleStrategy
	}
	if c.Ensemble.Parallelism < 0 {
		c.Ensemble.Parallelism = 0
	}
	for i := range c.Ensemble.Engines {
		engine := &c.Ensemble.Engines[i]
		engine.Name = strings.TrimSpace(engine.Name)
		engine.Kind = strings.ToLower(strings.TrimSpace(engine.Kind))
		engine.Command = strings.TrimSpace(engine.Command)
		if engine.Kind == "" {
			engine.Kind = "command"
		}
	}
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Transcoder = strings.ToLower(strings.TrimSpace(c.Pipeline.Transcoder))
	if c.Pipeline.Transcoder == "" {
		c.Pipeline.Transcoder = defaultTranscoder
	}
	c.Pipeline.FFmpegBinary = strings.TrimSpace(c.Pipeline.FFmpegBinary)
	if c.Pipeline.FFmpegBinary == "" {
		c.Pipeline.FFmpegBinary = "ffmpeg"
	}
	c.Pipeline.FFprobeBinary = strings.TrimSpace(c.Pipeline.FFprobeBinary)
	if c.Pipeline.FFprobeBinary == "" {
		c.Pipeline.FFprobeBinary = "ffprobe"
	}
	c.Pipeline.VideoExtensions = normalizeList(c.Pipeline.VideoExtensions, defaultVideoExtensions, func(ext string) string {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		return ext
	})
}

func (c *Config) normalizeOCR() {
	c.OCR.Languages = normalizeList(c.OCR.Languages, defaultOCRLanguages, language.ToTesseract)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func normalizeList(values, fallback []string, transform func(string) string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if normalized == "" {
			continue
		}
		normalized = transform(normalized)
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
