package pipeline

import (
	"context"
	"fmt"

	"subguard/internal/classify"
	"subguard/internal/ensemble"
)

// Verdict is the judgment the validate stage acts on.
type Verdict struct {
	HasSubtitles bool           `json:"has_subtitles"`
	Confidence   float64        `json:"confidence"`
	Reason       string         `json:"reason"`
	Source       string         `json:"source"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Judge decides whether the clip at videoPath carries burned-in subtitles.
// It must not mutate pipeline state.
type Judge interface {
	Judge(ctx context.Context, videoPath string) (Verdict, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, videoPath string) (Verdict, error)

// Judge calls f.
func (f JudgeFunc) Judge(ctx context.Context, videoPath string) (Verdict, error) {
	return f(ctx, videoPath)
}

// Analyzer produces a single classifier verdict for a clip.
// engine.TrackEngine satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, videoPath string) (classify.Result, error)
}

// Voter produces an ensemble verdict for a clip. ensemble.Voter satisfies it.
type Voter interface {
	Vote(ctx context.Context, videoPath string) (ensemble.Result, error)
}

// ClassifierJudge judges with one track classifier.
func ClassifierJudge(a Analyzer) Judge {
	return JudgeFunc(func(ctx context.Context, videoPath string) (Verdict, error) {
		res, err := a.Analyze(ctx, videoPath)
		if err != nil {
			return Verdict{}, err
		}
		return VerdictFromClassification(res), nil
	})
}

// EnsembleJudge judges by voting across the registered engines.
func EnsembleJudge(v Voter) Judge {
	return JudgeFunc(func(ctx context.Context, videoPath string) (Verdict, error) {
		res, err := v.Vote(ctx, videoPath)
		if err != nil {
			return Verdict{}, err
		}
		return VerdictFromEnsemble(res), nil
	})
}

// VerdictFromClassification converts a classifier result.
func VerdictFromClassification(res classify.Result) Verdict {
	categories := make(map[string]int, len(res.TracksByCategory))
	for cat, n := range res.TracksByCategory {
		categories[string(cat)] = n
	}
	return Verdict{
		HasSubtitles: res.HasSubtitles,
		Confidence:   res.Confidence,
		Reason:       res.Reason,
		Source:       "classifier:" + res.Classifier,
		Metadata: map[string]any{
			"decision_logic":     res.DecisionLogic,
			"classifier":         res.Classifier,
			"tracks_by_category": categories,
			"subtitle_tracks":    len(res.SubtitleTracks),
		},
	}
}

// VerdictFromEnsemble converts an ensemble result.
func VerdictFromEnsemble(res ensemble.Result) Verdict {
	yes := 0
	votes := make([]map[string]any, 0, len(res.Votes))
	for _, v := range res.Votes {
		if v.HasSubtitles {
			yes++
		}
		votes = append(votes, map[string]any{
			"engine":        v.Engine,
			"has_subtitles": v.HasSubtitles,
			"confidence":    v.Confidence,
			"weight":        v.Weight,
		})
	}
	failed := make([]string, 0, len(res.Failures))
	for _, f := range res.Failures {
		failed = append(failed, f.Engine)
	}
	meta := map[string]any{
		"strategy": string(res.Strategy),
		"votes":    votes,
	}
	if len(failed) > 0 {
		meta["failed_engines"] = failed
	}
	if res.Conflict != nil {
		meta["conflict"] = res.Conflict
	}
	if res.Uncertainty != nil {
		meta["uncertainty"] = res.Uncertainty
	}
	return Verdict{
		HasSubtitles: res.HasSubtitles,
		Confidence:   res.Confidence,
		Reason: fmt.Sprintf("%s vote: %d of %d engines detected subtitles",
			res.Strategy, yes, len(res.Votes)),
		Source:   "ensemble:" + string(res.Strategy),
		Metadata: meta,
	}
}
