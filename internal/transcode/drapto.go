package transcode

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	draptolib "github.com/five82/drapto"

	"subguard/internal/fileutil"
	"subguard/internal/logging"
	"subguard/internal/services"
)

// encodeFunc matches draptolib.Encoder.EncodeWithReporter. The encoder names
// its output <outputDir>/<input stem>.mkv.
type encodeFunc func(ctx context.Context, inputPath, outputDir string, rep draptolib.Reporter) error

// ScratchPrefix names the per-encode scratch directories Drapto creates
// beside its output. A crash mid-encode leaves one behind.
const ScratchPrefix = ".drapto-"

// Drapto transcodes in-process with the drapto AV1 encoder.
type Drapto struct {
	logger *slog.Logger
	encode encodeFunc
}

// NewDrapto constructs a drapto backend.
func NewDrapto(logger *slog.Logger) *Drapto {
	return &Drapto{
		logger: logging.NewComponentLogger(logger, "transcode"),
		encode: libraryEncode,
	}
}

func libraryEncode(ctx context.Context, inputPath, outputDir string, rep draptolib.Reporter) error {
	encoder, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return err
	}
	_, err = encoder.EncodeWithReporter(ctx, inputPath, outputDir, rep)
	return err
}

// Name implements Transcoder.
func (d *Drapto) Name() string { return BackendDrapto }

// Extension implements Transcoder.
func (d *Drapto) Extension() string { return ".mkv" }

// Transcode implements Transcoder. Drapto writes into a scratch directory
// beside dst which is removed whatever the outcome.
func (d *Drapto) Transcode(ctx context.Context, src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return services.Wrap(services.ErrNotFound, "transform", "drapto", "source missing", err)
	}
	scratch, err := os.MkdirTemp(filepath.Dir(dst), ScratchPrefix)
	if err != nil {
		return services.Wrap(services.ErrTransient, "transform", "drapto", "create scratch dir", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	start := time.Now()
	if err := d.encode(ctx, src, scratch, newLogReporter(d.logger)); err != nil {
		marker := services.ErrExternalTool
		if ctx.Err() != nil {
			marker = services.ErrTimeout
		}
		return services.Wrap(marker, "transform", "drapto", "encode failed", err)
	}

	base := filepath.Base(src)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	produced := filepath.Join(scratch, stem+".mkv")
	if err := fileutil.Move(produced, dst); err != nil {
		return services.Wrap(services.ErrExternalTool, "transform", "drapto", "collect output", err)
	}
	d.logger.Debug("drapto finished",
		logging.String("destination", dst),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// logReporter forwards drapto events to the component logger. Progress is
// logged at debug in ten percent steps.
type logReporter struct {
	logger      *slog.Logger
	lastPercent float64
}

func newLogReporter(logger *slog.Logger) *logReporter {
	return &logReporter{logger: logger, lastPercent: -10}
}

func (r *logReporter) Hardware(s draptolib.HardwareSummary) {
	r.logger.Debug("drapto hardware info", logging.String("hardware_hostname", strings.TrimSpace(s.Hostname)))
}

func (r *logReporter) Initialization(s draptolib.InitializationSummary) {
	r.logger.Debug("drapto video info",
		logging.String("video_file", strings.TrimSpace(s.InputFile)),
		logging.String("video_resolution", strings.TrimSpace(s.Resolution)),
		logging.String("video_duration", strings.TrimSpace(s.Duration)),
	)
}

func (r *logReporter) StageProgress(s draptolib.StageProgress) {
	r.logger.Debug("drapto stage", logging.String("progress_stage", s.Stage), logging.String("progress_message", s.Message))
}

func (r *logReporter) CropResult(s draptolib.CropSummary) {
	r.logger.Debug("drapto crop detection", logging.String("crop_message", strings.TrimSpace(s.Message)), logging.Bool("crop_required", s.Required))
}

func (r *logReporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	r.logger.Debug("drapto encoding config",
		logging.String("encoding_encoder", strings.TrimSpace(s.Encoder)),
		logging.String("encoding_preset", strings.TrimSpace(s.Preset)),
		logging.String("encoding_quality", strings.TrimSpace(s.Quality)),
	)
}

func (r *logReporter) EncodingStarted(totalFrames uint64) {
	r.logger.Debug("drapto encoding started", logging.Any("encoding_total_frames", totalFrames))
}

func (r *logReporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	percent := float64(s.Percent)
	if percent-r.lastPercent < 10 {
		return
	}
	r.lastPercent = percent
	r.logger.Debug("drapto progress",
		logging.Float64("progress_percent", percent),
		logging.Duration("progress_eta", s.ETA),
	)
}

func (r *logReporter) ValidationComplete(s draptolib.ValidationSummary) {
	r.logger.Debug("drapto validation", logging.Bool("validation_passed", s.Passed))
}

func (r *logReporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.logger.Debug("drapto results",
		logging.String("encoding_result_output", strings.TrimSpace(s.OutputPath)),
		logging.Duration("encoding_result_duration", s.TotalTime),
	)
}

func (r *logReporter) Warning(message string) {
	logging.WarnWithContext(r.logger, "drapto warning", "drapto_warning",
		logging.String("drapto_warning", strings.TrimSpace(message)),
		logging.String(logging.FieldImpact, "transcode continues"),
	)
}

func (r *logReporter) Error(e draptolib.ReporterError) {
	attrs := []logging.Attr{
		logging.String("drapto_error_title", strings.TrimSpace(e.Title)),
		logging.String("drapto_error_message", strings.TrimSpace(e.Message)),
	}
	if hint := strings.TrimSpace(e.Suggestion); hint != "" {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, hint))
	}
	logging.ErrorWithContext(r.logger, "drapto error", "drapto_error", attrs...)
}

func (r *logReporter) OperationComplete(message string) {
	r.logger.Debug("drapto encode complete", logging.String("result", strings.TrimSpace(message)))
}

func (r *logReporter) BatchStarted(draptolib.BatchStartInfo) {}

func (r *logReporter) FileProgress(draptolib.FileProgressContext) {}

func (r *logReporter) BatchComplete(draptolib.BatchSummary) {}

var _ draptolib.Reporter = (*logReporter)(nil)
