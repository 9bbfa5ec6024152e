package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"subguard/internal/config"
	"subguard/internal/services"
)

// Backend names accepted in pipeline.transcoder.
const (
	BackendFFmpeg = "ffmpeg"
	BackendDrapto = "drapto"
)

// Transcoder converts src into the working format at dst.
type Transcoder interface {
	Name() string
	// Extension is the file extension, with dot, of the produced file.
	Extension() string
	Transcode(ctx context.Context, src, dst string) error
}

// New returns the backend selected by cfg.
func New(cfg *config.Config, logger *slog.Logger) (Transcoder, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "transform", "transcoder", "config is nil", nil)
	}
	switch name := strings.ToLower(strings.TrimSpace(cfg.Pipeline.Transcoder)); name {
	case "", BackendFFmpeg:
		return NewFFmpeg(cfg.Pipeline.FFmpegBinary, cfg.Pipeline.TargetHeight, logger), nil
	case BackendDrapto:
		return NewDrapto(logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "transform", "transcoder",
			fmt.Sprintf("unknown transcoder %q", name), nil)
	}
}
