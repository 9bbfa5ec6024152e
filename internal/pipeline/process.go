package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"subguard/internal/logging"
	"subguard/internal/services"
	"subguard/internal/status"
)

// Request describes one clip to judge.
type Request struct {
	VideoID    string
	SourcePath string
	Title      string
	URL        string
	Metadata   map[string]any
}

// Outcome is the result of Process.
type Outcome struct {
	VideoID      string        `json:"video_id"`
	JobID        string        `json:"job_id,omitempty"`
	State        State         `json:"state"`
	HasSubtitles bool          `json:"has_subtitles"`
	Confidence   float64       `json:"confidence"`
	Reason       string        `json:"reason"`
	Source       string        `json:"source,omitempty"`
	Path         string        `json:"path,omitempty"`
	Cached       bool          `json:"cached"`
	Duration     time.Duration `json:"duration"`
}

// Process runs req through every stage. A clip that already has a stored
// verdict is answered from the store without any detector work. On failure
// or cancellation intermediate files are removed, no record is written and
// the returned Outcome has StateFailed.
func (p *Pipeline) Process(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()
	req.VideoID = strings.TrimSpace(req.VideoID)
	out := Outcome{VideoID: req.VideoID, State: StateQueued}
	if err := status.ValidateVideoID(req.VideoID); err != nil {
		out.State = StateFailed
		return out, err
	}
	ctx = services.WithVideoID(ctx, req.VideoID)
	logger := logging.WithContext(ctx, p.logger)

	cached, err := p.store.Lookup(ctx, req.VideoID)
	if err != nil {
		out.State = StateFailed
		return out, services.Wrap(services.ErrStore, "queued", "lookup verdict", "", err)
	}
	if cached != nil {
		out.State = stateForVerdict(cached.Verdict)
		out.HasSubtitles = cached.Verdict == status.VerdictRejected
		out.Confidence = cached.Confidence
		out.Reason = cached.Reason
		out.Path = cached.FilePath
		out.Cached = true
		out.Duration = time.Since(start)
		p.recorder.Verdict(string(cached.Verdict), true)
		logger.Info("verdict served from status store",
			logging.Args(logging.DecisionAttrs("verdict_cache", string(cached.Verdict), "already judged")...)...)
		return out, nil
	}

	jobID := p.newJobID()
	out.JobID = jobID
	ctx = services.WithJobID(ctx, jobID)

	var transformed, validating string
	fail := func(err error) (Outcome, error) {
		// Only intermediate copies are removed; the raw source stays put.
		for _, path := range []string{transformed, validating} {
			if path != "" {
				p.discard(logger, path)
			}
		}
		out.State = StateFailed
		out.Duration = time.Since(start)
		return out, err
	}

	out.State = StateTransforming
	err = p.runStage(ctx, StateTransforming, func(ctx context.Context) error {
		path, err := p.Transform(ctx, req.VideoID, req.SourcePath)
		transformed = path
		return err
	})
	if err != nil {
		return fail(err)
	}

	out.State = StateValidating
	var verdict Verdict
	err = p.runStage(ctx, StateValidating, func(ctx context.Context) error {
		path, err := p.MoveToValidation(ctx, req.VideoID, transformed, jobID)
		if err != nil {
			return err
		}
		transformed, validating = "", path
		verdict, err = p.Validate(ctx, req.VideoID, validating)
		return err
	})
	if err != nil {
		return fail(err)
	}

	decision := Decision{
		Title:      req.Title,
		URL:        req.URL,
		Reason:     verdict.Reason,
		Confidence: verdict.Confidence,
		Metadata:   mergeMetadata(req.Metadata, verdict, jobID),
	}
	out.HasSubtitles = verdict.HasSubtitles
	out.Confidence = verdict.Confidence
	out.Reason = verdict.Reason
	out.Source = verdict.Source

	if verdict.HasSubtitles {
		err = p.runStage(ctx, StateRejected, func(ctx context.Context) error {
			return p.Reject(ctx, req.VideoID, validating, decision)
		})
		if err != nil {
			return p.keepForRetry(ctx, out, validating, start, err)
		}
		out.State = StateRejected
	} else {
		err = p.runStage(ctx, StateApproved, func(ctx context.Context) error {
			path, err := p.Approve(ctx, req.VideoID, validating, decision)
			out.Path = path
			return err
		})
		if err != nil {
			return p.keepForRetry(ctx, out, validating, start, err)
		}
		out.State = StateApproved
	}

	out.Duration = time.Since(start)
	p.recorder.Verdict(string(out.State), false)
	logger.Info("clip judged",
		logging.Args(append(logging.DecisionAttrs("clip_verdict", string(out.State), verdict.Reason),
			logging.Bool("has_subtitles", verdict.HasSubtitles),
			logging.Float64("confidence", verdict.Confidence),
			logging.String("source", verdict.Source),
			logging.Duration("elapsed", out.Duration),
		)...)...)
	return out, nil
}

// keepForRetry reports a verdict that could not be recorded. After a store
// failure the validation file is left in place for a retry and the orphan
// sweep reclaims it if nobody retries; after cancellation it is removed.
func (p *Pipeline) keepForRetry(ctx context.Context, out Outcome, validating string, start time.Time, err error) (Outcome, error) {
	if ctx.Err() != nil {
		p.discard(logging.WithContext(ctx, p.logger), validating)
	}
	out.State = StateFailed
	out.Path = ""
	out.Duration = time.Since(start)
	return out, err
}

func mergeMetadata(base map[string]any, verdict Verdict, jobID string) map[string]any {
	meta := make(map[string]any, len(base)+len(verdict.Metadata)+2)
	for k, v := range base {
		meta[k] = v
	}
	for k, v := range verdict.Metadata {
		meta[k] = v
	}
	meta["job_id"] = jobID
	if verdict.Source != "" {
		meta["source"] = verdict.Source
	}
	return meta
}

// Describe renders o as a single human-readable line.
func (o Outcome) Describe() string {
	label := string(o.State)
	if o.Cached {
		label += " (cached)"
	}
	if o.Reason == "" {
		return fmt.Sprintf("%s: %s", o.VideoID, label)
	}
	return fmt.Sprintf("%s: %s, confidence %.2f, %s", o.VideoID, label, o.Confidence, o.Reason)
}
