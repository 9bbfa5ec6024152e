// Package frames extracts still frames from a clip at a fixed sampling rate.
package frames

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"subguard/internal/logging"
	"subguard/internal/services"
	"subguard/internal/transcode"
)

// Frame is one sampled still on disk.
type Frame struct {
	Index     int
	Path      string
	Timestamp float64
}

// Set is the frames sampled from one clip. Close removes them.
type Set struct {
	Dir    string
	Frames []Frame
}

// Close deletes the sampled frames.
func (s *Set) Close() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	return os.RemoveAll(s.Dir)
}

// Sampler runs ffmpeg's fps filter to write PNG stills.
type Sampler struct {
	binary  string
	fps     float64
	tempDir string
	logger  *slog.Logger
	run     transcode.CommandRunner
}

// NewSampler constructs a sampler. Frames go to a fresh directory under
// tempDir, or the system temp dir when tempDir is empty.
func NewSampler(binary string, fps float64, tempDir string, logger *slog.Logger) *Sampler {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Sampler{
		binary:  binary,
		fps:     fps,
		tempDir: tempDir,
		logger:  logging.NewComponentLogger(logger, "frames"),
		run:     transcode.RunCommand,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (s *Sampler) WithCommandRunner(r transcode.CommandRunner) {
	if s != nil && r != nil {
		s.run = r
	}
}

// FPS returns the sampling rate.
func (s *Sampler) FPS() float64 { return s.fps }

// Sample extracts frames from videoPath. The caller must Close the set.
func (s *Sampler) Sample(ctx context.Context, videoPath string) (*Set, error) {
	if s.fps <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "validate", "sample frames", "sample fps must be positive", nil)
	}
	if _, err := os.Stat(videoPath); err != nil {
		return nil, services.Wrap(services.ErrNotFound, "validate", "sample frames", "clip missing", err)
	}
	if s.tempDir != "" {
		if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrTransient, "validate", "sample frames", "create temp root", err)
		}
	}
	dir, err := os.MkdirTemp(s.tempDir, "frames-")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "validate", "sample frames", "create frame dir", err)
	}
	set := &Set{Dir: dir}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%g", s.fps),
		"-f", "image2",
		filepath.Join(dir, "frame_%06d.png"),
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		_ = set.Close()
		marker := services.ErrExternalTool
		if ctx.Err() != nil {
			marker = services.ErrTimeout
		}
		return nil, services.Wrap(marker, "validate", "sample frames", "ffmpeg failed", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		_ = set.Close()
		return nil, services.Wrap(services.ErrTransient, "validate", "sample frames", "list frames", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".png") {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)
	for i, name := range names {
		set.Frames = append(set.Frames, Frame{
			Index:     i,
			Path:      filepath.Join(dir, name),
			Timestamp: float64(i) / s.fps,
		})
	}
	s.logger.Debug("frames sampled",
		logging.String("clip", videoPath),
		logging.Int("frames", len(set.Frames)),
		logging.Float64("fps", s.fps),
	)
	return set, nil
}
