package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subguard/internal/logging"
	"subguard/internal/transcode"
)

// CleanupResult reports one orphan sweep.
type CleanupResult struct {
	Removed []string
	// Abandoned lists the removed validation files that still carried a
	// job marker, i.e. work interrupted between validation and a verdict.
	Abandoned []Marker
	Errors    []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanupOrphanedFiles sweeps the pipeline's working directories and records
// the number of removed files.
func (p *Pipeline) CleanupOrphanedFiles(ctx context.Context, maxAge time.Duration) CleanupResult {
	result := SweepOrphans(ctx, p.opts, maxAge, p.logger)
	p.recorder.CleanupRemoved(len(result.Removed))
	return result
}

// SweepOrphans deletes files older than maxAge from opts.TransformDir and
// opts.ValidateDir. Missing directories and files that disappear mid-scan
// are not errors, so concurrent sweeps are safe. It stops early when ctx
// ends.
func SweepOrphans(ctx context.Context, opts Options, maxAge time.Duration, logger *slog.Logger) CleanupResult {
	result := CleanupResult{}
	cutoff := time.Now().Add(-maxAge)
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithContext(ctx, logger)

	for _, dir := range []string{opts.TransformDir, opts.ValidateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			}
			continue
		}
		for _, entry := range entries {
			if ctx.Err() != nil {
				return result
			}
			path := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				if dir == opts.TransformDir && strings.HasPrefix(entry.Name(), transcode.ScratchPrefix) {
					sweepScratch(path, cutoff, logger, &result)
				}
				continue
			}
			info, err := entry.Info()
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
				}
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
				logging.WarnWithContext(logger, "failed to remove orphaned file", "orphan_cleanup_failed",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check transform_dir and validate_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
				continue
			}
			result.Removed = append(result.Removed, path)
			attrs := []logging.Attr{
				logging.String("path", path),
				logging.Duration("age", time.Since(info.ModTime())),
				logging.String(logging.FieldEventType, "orphan_cleanup"),
			}
			if dir == opts.ValidateDir {
				if marker, ok := ParseMarker(entry.Name()); ok {
					result.Abandoned = append(result.Abandoned, marker)
					attrs = append(attrs,
						logging.String(logging.FieldJobID, marker.JobID),
						logging.String(logging.FieldVideoID, marker.VideoID),
					)
				}
			}
			logger.Info("removed orphaned file", logging.Args(attrs...)...)
		}
	}
	return result
}

// sweepScratch removes an encoder scratch directory once nothing inside it
// has been touched since cutoff. An encode in progress keeps rewriting its
// output, so the newest modification time is what ages.
func sweepScratch(path string, cutoff time.Time, logger *slog.Logger, result *CleanupResult) {
	newest, err := newestModTime(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
		}
		return
	}
	if newest.IsZero() || !newest.Before(cutoff) {
		return
	}
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
		logging.WarnWithContext(logger, "failed to remove scratch directory", "orphan_cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check transform_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return
	}
	result.Removed = append(result.Removed, path)
	logger.Info("removed orphaned scratch directory",
		logging.Args(
			logging.String("path", path),
			logging.Duration("age", time.Since(newest)),
			logging.String(logging.FieldEventType, "orphan_cleanup"),
		)...,
	)
}

func newestModTime(root string) (time.Time, error) {
	var newest time.Time
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return newest, err
}
