package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// ConfigEnvVar names the environment variable consulted when no explicit
// config path is supplied.
const ConfigEnvVar = "SUBGUARD_CONFIG"

// Paths contains the pipeline working areas and state locations.
type Paths struct {
	TransformDir string `toml:"transform_dir"`
	ValidateDir  string `toml:"validate_dir"`
	ApprovedDir  string `toml:"approved_dir"`
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
}

// Tracker contains temporal tracker association settings.
type Tracker struct {
	IoUThreshold         float64 `toml:"iou_threshold"`
	MaxDistancePx        float64 `toml:"max_distance_px"`
	SampleFPS            float64 `toml:"sample_fps"`
	TextSimilarityCutoff float64 `toml:"text_similarity_cutoff"`
	PositionVarianceNorm float64 `toml:"position_variance_norm"`
}

// Classifier contains track classification settings. Strategy selects the
// implementation; the remaining fields tune the rule-based cascade.
type Classifier struct {
	Strategy                string  `toml:"strategy"`
	StaticMinPresence       float64 `toml:"static_min_presence"`
	StaticMaxChange         float64 `toml:"static_max_change"`
	SubtitleMinChangeRate   float64 `toml:"subtitle_min_change_rate"`
	ScreencastMinDetections int     `toml:"screencast_min_detections"`
	IgnoreStatic            bool    `toml:"ignore_static"`
	IgnoreScreencast        bool    `toml:"ignore_screencast"`
	SubtitleScoreThreshold  float64 `toml:"subtitle_score_threshold"`
}

// Engine describes one ensemble member.
type Engine struct {
	Name           string   `toml:"name"`
	Kind           string   `toml:"kind"`
	Weight         float64  `toml:"weight"`
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Ensemble contains multi-engine voting settings. With no engines configured
// clips are judged by the single track classifier.
type Ensemble struct {
	Strategy          string   `toml:"strategy"`
	ConflictThreshold float64  `toml:"conflict_threshold"`
	Parallelism       int      `toml:"parallelism"`
	Engines           []Engine `toml:"engines"`
}

// Pipeline contains worker, transcode, and cleanup settings.
type Pipeline struct {
	Workers                 int      `toml:"workers"`
	MaxConcurrentTranscodes int      `toml:"max_concurrent_transcodes"`
	TranscodeTimeout        int      `toml:"transcode_timeout"`
	DetectTimeout           int      `toml:"detect_timeout"`
	OrphanMaxAgeHours       int      `toml:"orphan_max_age_hours"`
	CleanupInterval         int      `toml:"cleanup_interval"`
	Transcoder              string   `toml:"transcoder"`
	FFmpegBinary            string   `toml:"ffmpeg_binary"`
	FFprobeBinary           string   `toml:"ffprobe_binary"`
	TargetHeight            int      `toml:"target_height"`
	VideoExtensions         []string `toml:"video_extensions"`
}

// OCR contains settings for the tesseract frame detector.
type OCR struct {
	Languages     []string `toml:"languages"`
	MinConfidence float64  `toml:"min_confidence"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics contains the optional prometheus endpoint bind address.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Config encapsulates all configuration values for subguard.
//
// Configuration sections by subsystem:
//   - Paths: pipeline working areas, state and log directories
//   - Tracker: detection association thresholds
//   - Classifier: per-track category rules and strategy selection
//   - Ensemble: voting strategy and detector engines
//   - Pipeline: worker pool, transcoding, and orphan cleanup
//   - OCR: tesseract frame detector
//   - Logging: log format, level, and retention
//   - Metrics: prometheus endpoint
type Config struct {
	Paths      Paths      `toml:"paths"`
	Tracker    Tracker    `toml:"tracker"`
	Classifier Classifier `toml:"classifier"`
	Ensemble   Ensemble   `toml:"ensemble"`
	Pipeline   Pipeline   `toml:"pipeline"`
	OCR        OCR        `toml:"ocr"`
	Logging    Logging    `toml:"logging"`
	Metrics    Metrics    `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		if value, ok := os.LookupEnv(ConfigEnvVar); ok {
			path = strings.TrimSpace(value)
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subguard.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the pipeline working areas plus state and log
// directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.TransformDir, c.Paths.ValidateDir, c.Paths.ApprovedDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StatusDBPath returns the location of the verdict database.
func (c *Config) StatusDBPath() string {
	return filepath.Join(c.Paths.StateDir, "status.db")
}

// LockPath returns the batch runner lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "subguard.lock")
}

// TranscodeTimeout returns the per-clip transcode deadline.
func (c *Config) TranscodeTimeout() time.Duration {
	return time.Duration(c.Pipeline.TranscodeTimeout) * time.Second
}

// DetectTimeout returns the per-clip detection deadline.
func (c *Config) DetectTimeout() time.Duration {
	return time.Duration(c.Pipeline.DetectTimeout) * time.Second
}

// OrphanMaxAge returns the age past which working-area files are abandoned.
func (c *Config) OrphanMaxAge() time.Duration {
	return time.Duration(c.Pipeline.OrphanMaxAgeHours) * time.Hour
}

// CleanupInterval returns how often the batch runner sweeps working areas.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Pipeline.CleanupInterval) * time.Minute
}

// EngineTimeout returns the detection deadline for a single engine, falling
// back to the pipeline detect timeout.
func (e Engine) EngineTimeout(fallback time.Duration) time.Duration {
	if e.TimeoutSeconds > 0 {
		return time.Duration(e.TimeoutSeconds) * time.Second
	}
	return fallback
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
