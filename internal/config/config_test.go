package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"subguard/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv(config.ConfigEnvVar, "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantTransform := filepath.Join(tempHome, ".local", "share", "subguard", "transform")
	if cfg.Paths.TransformDir != wantTransform {
		t.Fatalf("unexpected transform dir: got %q want %q", cfg.Paths.TransformDir, wantTransform)
	}
	if cfg.Classifier.Strategy != "weighted" {
		t.Fatalf("expected weighted classifier by default, got %q", cfg.Classifier.Strategy)
	}
	if cfg.Pipeline.MaxConcurrentTranscodes != 3 {
		t.Fatalf("expected transcode cap 3, got %d", cfg.Pipeline.MaxConcurrentTranscodes)
	}
	if cfg.Tracker.IoUThreshold != 0.3 || cfg.Tracker.MaxDistancePx != 50 {
		t.Fatalf("unexpected tracker defaults: %+v", cfg.Tracker)
	}
	if cfg.Ensemble.ConflictThreshold != 0.80 {
		t.Fatalf("unexpected conflict threshold: %v", cfg.Ensemble.ConflictThreshold)
	}
	if cfg.StatusDBPath() != filepath.Join(cfg.Paths.StateDir, "status.db") {
		t.Fatalf("unexpected status db path: %q", cfg.StatusDBPath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.TransformDir, cfg.Paths.ValidateDir, cfg.Paths.ApprovedDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "subguard.toml")

	type payload struct {
		Paths struct {
			TransformDir string `toml:"transform_dir"`
		} `toml:"paths"`
		Classifier struct {
			Strategy string `toml:"strategy"`
		} `toml:"classifier"`
		Pipeline struct {
			Workers         int      `toml:"workers"`
			Transcoder      string   `toml:"transcoder"`
			VideoExtensions []string `toml:"video_extensions"`
		} `toml:"pipeline"`
	}
	custom := payload{}
	custom.Paths.TransformDir = filepath.Join(tempDir, "work")
	custom.Classifier.Strategy = " RULE "
	custom.Pipeline.Workers = 5
	custom.Pipeline.Transcoder = "Drapto"
	custom.Pipeline.VideoExtensions = []string{"MP4", ".mkv", "mp4", ""}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.TransformDir != filepath.Join(tempDir, "work") {
		t.Fatalf("expected transform dir from file, got %q", cfg.Paths.TransformDir)
	}
	if cfg.Classifier.Strategy != "rule" {
		t.Fatalf("expected normalized strategy, got %q", cfg.Classifier.Strategy)
	}
	if cfg.Pipeline.Workers != 5 {
		t.Fatalf("expected 5 workers, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.Transcoder != "drapto" {
		t.Fatalf("expected drapto transcoder, got %q", cfg.Pipeline.Transcoder)
	}
	if got := strings.Join(cfg.Pipeline.VideoExtensions, ","); got != ".mp4,.mkv" {
		t.Fatalf("unexpected extensions: %q", got)
	}
}

func TestLoadHonoursEnvPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "env.toml")
	if err := os.WriteFile(configPath, []byte("[pipeline]\nworkers = 7\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(config.ConfigEnvVar, configPath)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected env path to resolve, got %q exists=%v", resolved, exists)
	}
	if cfg.Pipeline.Workers != 7 {
		t.Fatalf("expected workers from env config, got %d", cfg.Pipeline.Workers)
	}
}

func TestLoadNormalizesOCRLanguages(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "subguard.toml")
	content := "[ocr]\nlanguages = [\"en\", \"English\", \"fre\", \"chi_sim\"]\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := []string{"eng", "fra", "chi_sim"}
	if strings.Join(cfg.OCR.Languages, ",") != strings.Join(want, ",") {
		t.Fatalf("OCR languages = %v, want %v", cfg.OCR.Languages, want)
	}
}

func TestLoadRejectsMissingRequiredDirectory(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "subguard.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\nvalidate_dir = \"\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected error for empty validate_dir")
	}
	if !strings.Contains(err.Error(), "paths.validate_dir") {
		t.Fatalf("expected key name in error, got %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "subguard.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\nstaging_dir = \"/tmp\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected parse error for unknown key")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	cfg := config.Default()
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.ValidateDir, "subguard") {
		t.Fatalf("expected validate dir to contain subguard, got %q", cfg.Paths.ValidateDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"workers", func(c *config.Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"transcoder", func(c *config.Config) { c.Pipeline.Transcoder = "handbrake" }, "pipeline.transcoder"},
		{"classifier", func(c *config.Config) { c.Classifier.Strategy = "neural" }, "classifier.strategy"},
		{"ensemble strategy", func(c *config.Config) { c.Ensemble.Strategy = "plurality" }, "ensemble.strategy"},
		{"iou", func(c *config.Config) { c.Tracker.IoUThreshold = 1.5 }, "tracker.iou_threshold"},
		{"approved dir", func(c *config.Config) { c.Paths.ApprovedDir = "" }, "paths.approved_dir"},
		{"engine weight", func(c *config.Config) {
			c.Ensemble.Engines = []config.Engine{{Name: "a", Kind: "ocr-tracker", Weight: 1.2}}
		}, "weight"},
		{"engine weight omitted", func(c *config.Config) {
			c.Ensemble.Engines = []config.Engine{{Name: "a", Kind: "ocr-tracker"}}
		}, "weight"},
		{"engine duplicate", func(c *config.Config) {
			c.Ensemble.Engines = []config.Engine{
				{Name: "a", Kind: "ocr-tracker", Weight: 0.5},
				{Name: "a", Kind: "ocr-tracker", Weight: 0.5},
			}
		}, "duplicated"},
		{"engine command", func(c *config.Config) {
			c.Ensemble.Engines = []config.Engine{{Name: "vision", Kind: "command", Weight: 0.5}}
		}, "command must be set"},
	}
	for _, tc := range cases {
		cfg := config.Default()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected %q in error, got %v", tc.name, tc.want, err)
		}
	}
}

func TestEngineTimeoutFallback(t *testing.T) {
	cfg := config.Default()
	engine := config.Engine{Name: "x", Kind: "ocr-tracker"}
	if got := engine.EngineTimeout(cfg.DetectTimeout()); got != cfg.DetectTimeout() {
		t.Fatalf("expected fallback timeout, got %v", got)
	}
	engine.TimeoutSeconds = 5
	if got := engine.EngineTimeout(cfg.DetectTimeout()); got.Seconds() != 5 {
		t.Fatalf("expected 5s timeout, got %v", got)
	}
}
