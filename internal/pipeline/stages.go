package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"subguard/internal/fileutil"
	"subguard/internal/logging"
	"subguard/internal/services"
	"subguard/internal/status"
)

// Decision carries the descriptive fields written with a verdict.
type Decision struct {
	Title      string
	URL        string
	Reason     string
	Confidence float64
	Metadata   map[string]any
}

// Transform converts rawPath into the working format inside the transform
// directory and returns the produced path. Output is written to a hidden
// temporary name and renamed on success; a failed or timed-out transcode
// leaves nothing behind. The raw input is never modified.
func (p *Pipeline) Transform(ctx context.Context, videoID, rawPath string) (string, error) {
	if err := status.ValidateVideoID(videoID); err != nil {
		return "", err
	}
	if _, err := os.Stat(rawPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "transform", "stat source",
				fmt.Sprintf("source %q does not exist", rawPath), err)
		}
		return "", services.Wrap(services.ErrValidation, "transform", "stat source", "", err)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", interrupted(ctx, "transform", "wait for transcode slot")
	}
	p.recorder.TranscodesInFlight(1)
	defer func() {
		p.recorder.TranscodesInFlight(-1)
		p.sem.Release(1)
	}()

	ext := p.transcoder.Extension()
	final := filepath.Join(p.opts.TransformDir, videoID+ext)
	temp := filepath.Join(p.opts.TransformDir, "."+videoID+"."+uuid.NewString()+".partial"+ext)
	if err := fileutil.EnsureParent(final); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "transform", "create transform dir", "", err)
	}

	runCtx := ctx
	if p.opts.TranscodeTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.opts.TranscodeTimeout)
		defer cancel()
	}

	logger := logging.WithContext(ctx, p.logger)
	logger.Debug("transcode starting",
		logging.String("transcoder", p.transcoder.Name()),
		logging.String("source", rawPath),
		logging.String("temp_output", temp),
	)
	if err := p.transcoder.Transcode(runCtx, rawPath, temp); err != nil {
		p.discard(logger, temp)
		switch {
		case ctx.Err() != nil:
			return "", interrupted(ctx, "transform", "transcode")
		case runCtx.Err() != nil:
			return "", services.Wrap(services.ErrTimeout, "transform", "transcode",
				fmt.Sprintf("%s exceeded %s", p.transcoder.Name(), p.opts.TranscodeTimeout), err)
		default:
			return "", services.Wrap(services.ErrExternalTool, "transform", "transcode",
				p.transcoder.Name()+" failed", err)
		}
	}
	if err := os.Rename(temp, final); err != nil {
		p.discard(logger, temp)
		return "", services.Wrap(services.ErrTransient, "transform", "finalize output", "", err)
	}
	return final, nil
}

// MoveToValidation moves path into the validation directory under a name
// tagged with jobID and videoID.
func (p *Pipeline) MoveToValidation(ctx context.Context, videoID, path, jobID string) (string, error) {
	if err := status.ValidateVideoID(videoID); err != nil {
		return "", err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" || strings.Contains(jobID, status.ProcessingMarker) || strings.ContainsAny(jobID, `/\`) {
		return "", services.Wrap(services.ErrValidation, "validate", "move to validation",
			fmt.Sprintf("invalid job id %q", jobID), nil)
	}
	if err := ctx.Err(); err != nil {
		return "", interrupted(ctx, "validate", "move to validation")
	}
	dst := filepath.Join(p.opts.ValidateDir, MarkerName(jobID, videoID, filepath.Ext(path)))
	if err := moveFile(path, dst); err != nil {
		return "", classifyMoveError("validate", "move to validation", path, err)
	}
	return dst, nil
}

// Validate asks the configured Judge about the clip at path. It does not
// touch the file or the status store.
func (p *Pipeline) Validate(ctx context.Context, videoID, path string) (Verdict, error) {
	if err := status.ValidateVideoID(videoID); err != nil {
		return Verdict{}, err
	}
	runCtx := ctx
	if p.opts.DetectTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.opts.DetectTimeout)
		defer cancel()
	}
	verdict, err := p.judge.Judge(runCtx, path)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return Verdict{}, interrupted(ctx, "validate", "judge")
		case runCtx.Err() != nil:
			return Verdict{}, services.Wrap(services.ErrTimeout, "validate", "judge",
				fmt.Sprintf("detection exceeded %s", p.opts.DetectTimeout), err)
		default:
			return Verdict{}, services.Wrap(services.ErrDetector, "validate", "judge", "", err)
		}
	}
	if math.IsNaN(verdict.Confidence) || verdict.Confidence < 0 || verdict.Confidence > 1 {
		return Verdict{}, services.Wrap(services.ErrDetector, "validate", "judge",
			fmt.Sprintf("confidence %.3f outside [0,1]", verdict.Confidence), nil)
	}
	return verdict, nil
}

// Approve moves the clip into the approved directory and records the
// verdict. When the record cannot be written the file is moved back so the
// clip can be retried.
func (p *Pipeline) Approve(ctx context.Context, videoID, path string, d Decision) (string, error) {
	if err := status.ValidateVideoID(videoID); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", interrupted(ctx, "approve", "move to approved")
	}
	dst := filepath.Join(p.opts.ApprovedDir, videoID+filepath.Ext(path))
	if err := moveFile(path, dst); err != nil {
		return "", classifyMoveError("approve", "move to approved", path, err)
	}
	_, err := p.store.AddApproved(ctx, status.Approval{
		VideoID:    videoID,
		Title:      d.Title,
		URL:        d.URL,
		FilePath:   dst,
		Reason:     d.Reason,
		Confidence: d.Confidence,
		Metadata:   d.Metadata,
	})
	if err != nil {
		logger := logging.WithContext(ctx, p.logger)
		if rerr := fileutil.Move(dst, path); rerr != nil {
			logging.ErrorWithContext(logger, "failed to restore clip after store failure", "approve_rollback_failed",
				logging.String("approved_path", dst),
				logging.String("validation_path", path),
				logging.Error(rerr),
				logging.String(logging.FieldErrorHint, "move the file back into validate_dir or delete it and re-run"),
			)
		}
		return "", services.Wrap(services.ErrStore, "approve", "record verdict", "", err)
	}
	return dst, nil
}

// Reject records the verdict and then deletes the clip. A file that cannot
// be deleted is left for the orphan sweep; the verdict still stands.
func (p *Pipeline) Reject(ctx context.Context, videoID, path string, d Decision) error {
	if err := status.ValidateVideoID(videoID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return interrupted(ctx, "reject", "record verdict")
	}
	_, err := p.store.AddRejected(ctx, status.Rejection{
		VideoID:    videoID,
		Title:      d.Title,
		URL:        d.URL,
		Reason:     d.Reason,
		Confidence: d.Confidence,
		Metadata:   d.Metadata,
	})
	if err != nil {
		return services.Wrap(services.ErrStore, "reject", "record verdict", "", err)
	}
	if path != "" {
		if err := fileutil.RemoveIfExists(path); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, p.logger), "failed to delete rejected clip", "reject_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check validate_dir permissions"),
				logging.String(logging.FieldImpact, "disk space reclaimed by the next orphan sweep"),
			)
		}
	}
	return nil
}

func moveFile(src, dst string) error {
	if err := fileutil.EnsureParent(dst); err != nil {
		return err
	}
	return fileutil.Move(src, dst)
}

func classifyMoveError(stage, operation, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrNotFound, stage, operation,
			fmt.Sprintf("%q no longer exists", path), err)
	}
	return services.Wrap(services.ErrTransient, stage, operation, "", err)
}

// interrupted reports a stage stopped by ctx. Deadline expiry counts as a
// timeout; cancellation keeps context.Canceled in the chain.
func interrupted(ctx context.Context, stage, operation string) error {
	cause := ctx.Err()
	if errors.Is(cause, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stage, operation, "deadline exceeded", cause)
	}
	return services.Wrap(services.ErrTransient, stage, operation, "canceled", cause)
}

func (p *Pipeline) discard(logger *slog.Logger, path string) {
	if err := fileutil.RemoveIfExists(path); err != nil {
		logging.WarnWithContext(logger, "failed to remove partial output", "partial_cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check transform_dir permissions"),
			logging.String(logging.FieldImpact, "partial file removed by the next orphan sweep"),
		)
	}
}

// runStage wraps fn with the stage start, completion and failure logs and
// measurements.
func (p *Pipeline) runStage(ctx context.Context, stage State, fn func(ctx context.Context) error) error {
	stageCtx := services.WithStage(ctx, string(stage))
	logger := logging.WithContext(stageCtx, p.logger)
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	start := time.Now()
	err := fn(stageCtx)
	elapsed := time.Since(start)
	p.recorder.StageDuration(string(stage), elapsed)
	if err != nil {
		p.recorder.StageFailure(string(stage), services.Kind(err))
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("error_kind", services.Kind(err)),
			logging.Bool("retryable", services.Retryable(err)),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
		)
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}
