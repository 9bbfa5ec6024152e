package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"subguard/internal/config"
	"subguard/internal/logging"
	"subguard/internal/services"
	"subguard/internal/status"
	"subguard/internal/transcode"
)

// DefaultMaxConcurrentTranscodes caps simultaneous transcodes when Options
// leaves it unset.
const DefaultMaxConcurrentTranscodes = 3

// Options holds the directories and limits a Pipeline needs. The three
// directories are mandatory; New fails when any is empty.
type Options struct {
	TransformDir string `key:"paths.transform_dir" validate:"required"`
	ValidateDir  string `key:"paths.validate_dir" validate:"required"`
	ApprovedDir  string `key:"paths.approved_dir" validate:"required"`

	MaxConcurrentTranscodes int           `key:"pipeline.max_concurrent_transcodes" validate:"gte=0"`
	TranscodeTimeout        time.Duration `key:"pipeline.transcode_timeout" validate:"gte=0"`
	DetectTimeout           time.Duration `key:"pipeline.detect_timeout" validate:"gte=0"`
}

// OptionsFromConfig copies the pipeline settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		TransformDir:            cfg.Paths.TransformDir,
		ValidateDir:             cfg.Paths.ValidateDir,
		ApprovedDir:             cfg.Paths.ApprovedDir,
		MaxConcurrentTranscodes: cfg.Pipeline.MaxConcurrentTranscodes,
		TranscodeTimeout:        cfg.TranscodeTimeout(),
		DetectTimeout:           cfg.DetectTimeout(),
	}
}

// Store is the subset of status.Store the pipeline writes verdicts through.
type Store interface {
	Lookup(ctx context.Context, videoID string) (*status.Record, error)
	AddApproved(ctx context.Context, a status.Approval) (status.Record, error)
	AddRejected(ctx context.Context, r status.Rejection) (status.Record, error)
}

// Recorder receives pipeline measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	StageDuration(stage string, elapsed time.Duration)
	StageFailure(stage, kind string)
	Verdict(verdict string, cached bool)
	TranscodesInFlight(delta int)
	CleanupRemoved(count int)
}

type nopRecorder struct{}

func (nopRecorder) StageDuration(string, time.Duration) {}
func (nopRecorder) StageFailure(string, string)         {}
func (nopRecorder) Verdict(string, bool)                {}
func (nopRecorder) TranscodesInFlight(int)              {}
func (nopRecorder) CleanupRemoved(int)                  {}

// Deps are the collaborators a Pipeline drives. Store, Transcoder and Judge
// are required.
type Deps struct {
	Store      Store
	Transcoder transcode.Transcoder
	Judge      Judge
	Recorder   Recorder
	Logger     *slog.Logger
}

// Pipeline sequences clips through the working directories.
type Pipeline struct {
	opts       Options
	store      Store
	transcoder transcode.Transcoder
	judge      Judge
	recorder   Recorder
	logger     *slog.Logger
	sem        *semaphore.Weighted
	newJobID   func() string
}

var optionsValidator = newOptionsValidator()

func newOptionsValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if key := field.Tag.Get("key"); key != "" {
			return key
		}
		return field.Name
	})
	return v
}

// New validates opts and deps and returns a ready Pipeline. A missing
// directory or collaborator is a configuration error.
func New(opts Options, deps Deps) (*Pipeline, error) {
	opts.TransformDir = strings.TrimSpace(opts.TransformDir)
	opts.ValidateDir = strings.TrimSpace(opts.ValidateDir)
	opts.ApprovedDir = strings.TrimSpace(opts.ApprovedDir)
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	var missing []string
	if deps.Store == nil {
		missing = append(missing, "store")
	}
	if deps.Transcoder == nil {
		missing = append(missing, "transcoder")
	}
	if deps.Judge == nil {
		missing = append(missing, "judge")
	}
	if len(missing) > 0 {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new",
			"missing "+strings.Join(missing, ", "), nil)
	}
	if opts.MaxConcurrentTranscodes == 0 {
		opts.MaxConcurrentTranscodes = DefaultMaxConcurrentTranscodes
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Pipeline{
		opts:       opts,
		store:      deps.Store,
		transcoder: deps.Transcoder,
		judge:      deps.Judge,
		recorder:   recorder,
		logger:     logging.NewComponentLogger(deps.Logger, "pipeline"),
		sem:        semaphore.NewWeighted(int64(opts.MaxConcurrentTranscodes)),
		newJobID:   uuid.NewString,
	}, nil
}

func validateOptions(opts Options) error {
	err := optionsValidator.Struct(opts)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return services.Wrap(services.ErrConfiguration, "pipeline", "new", "", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fe.Field()+" is required")
		default:
			problems = append(problems, fmt.Sprintf("%s must be %s %s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return services.Wrap(services.ErrConfiguration, "pipeline", "new", strings.Join(problems, "; "), nil)
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}
