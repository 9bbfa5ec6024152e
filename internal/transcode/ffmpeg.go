package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"subguard/internal/logging"
	"subguard/internal/services"
)

// DefaultTargetHeight is the working-format frame height.
const DefaultTargetHeight = 720

// FFmpeg transcodes with an ffmpeg binary into H.264 MP4 without audio.
type FFmpeg struct {
	binary string
	height int
	logger *slog.Logger
	run    CommandRunner
}

// NewFFmpeg constructs an ffmpeg backend. Empty binary means "ffmpeg" on
// PATH; a non-positive height means DefaultTargetHeight.
func NewFFmpeg(binary string, height int, logger *slog.Logger) *FFmpeg {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if height <= 0 {
		height = DefaultTargetHeight
	}
	return &FFmpeg{
		binary: binary,
		height: height,
		logger: logging.NewComponentLogger(logger, "transcode"),
		run:    RunCommand,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (f *FFmpeg) WithCommandRunner(r CommandRunner) {
	if f != nil && r != nil {
		f.run = r
	}
}

// Name implements Transcoder.
func (f *FFmpeg) Name() string { return BackendFFmpeg }

// Extension implements Transcoder.
func (f *FFmpeg) Extension() string { return ".mp4" }

// Transcode implements Transcoder. On failure dst is removed.
func (f *FFmpeg) Transcode(ctx context.Context, src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return services.Wrap(services.ErrNotFound, "transform", "ffmpeg", "source missing", err)
	}
	args := f.args(src, dst)
	f.logger.Debug("executing ffmpeg",
		logging.String("source", src),
		logging.String("destination", dst),
		logging.Int("target_height", f.height),
	)

	start := time.Now()
	if err := f.run(ctx, f.binary, args...); err != nil {
		_ = os.Remove(dst)
		marker := services.ErrExternalTool
		if ctx.Err() != nil {
			marker = services.ErrTimeout
		}
		return services.Wrap(marker, "transform", "ffmpeg", "transcode failed", err)
	}
	info, err := os.Stat(dst)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(dst)
		return services.Wrap(services.ErrExternalTool, "transform", "ffmpeg", "no output produced", err)
	}
	f.logger.Debug("ffmpeg finished",
		logging.String("destination", dst),
		logging.Duration("elapsed", time.Since(start)),
		logging.Any("size_bytes", info.Size()),
	)
	return nil
}

func (f *FFmpeg) args(src, dst string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", src,
		"-map", "0:v:0",
		"-an", "-sn", "-dn",
		"-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", f.height),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-f", "mp4",
		dst,
	}
}
