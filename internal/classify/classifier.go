// Package classify labels finished text tracks and turns the labels into a
// clip-level burned-in subtitle verdict.
//
// Two strategies implement the same Classifier interface: RuleBased walks a
// priority-ordered rule cascade, WeightedScore blends six per-track signals.
// New selects one from Options.
package classify

import (
	"fmt"
	"strings"

	"subguard/internal/config"
	"subguard/internal/textrack"
)

// Category is the label assigned to a single track.
type Category string

const (
	CategorySubtitle     Category = "subtitle"
	CategoryStatic       Category = "static"
	CategoryScreencast   Category = "screencast"
	CategoryAmbiguous    Category = "ambiguous"
	CategoryAnimatedLogo Category = "animated_logo"
	CategoryStaticText   Category = "static_text"
	CategoryNoise        Category = "noise"
)

// Decision logic tags recorded on every Result.
const (
	LogicNoText          = "no_text"
	LogicSubtitleTracks  = "subtitle_tracks"
	LogicIgnoredOverlays = "ignored_overlays"
	LogicSuspicious      = "suspicious_ambiguous"
	LogicFewAmbiguous    = "few_ambiguous"
	LogicStaticText      = "static_text"
	LogicResolved        = "resolved_non_subtitle"
	LogicScoreBelow      = "score_below_threshold"
)

// TrackVerdict records how one track was labelled.
type TrackVerdict struct {
	TrackID  int                `json:"track_id"`
	ROI      textrack.ROI       `json:"roi"`
	Category Category           `json:"category"`
	Score    float64            `json:"score,omitempty"`
	Signals  map[string]float64 `json:"signals,omitempty"`
}

// Result is the clip-level outcome of one classifier invocation.
type Result struct {
	HasSubtitles     bool              `json:"has_subtitles"`
	Confidence       float64           `json:"confidence"`
	Reason           string            `json:"reason"`
	DecisionLogic    string            `json:"decision_logic"`
	Classifier       string            `json:"classifier"`
	TracksByCategory map[Category]int  `json:"tracks_by_category"`
	SubtitleTracks   []*textrack.Track `json:"-"`
	Verdicts         []TrackVerdict    `json:"verdicts,omitempty"`
}

// Classifier labels tracks and aggregates the labels into a clip verdict.
// Implementations are deterministic: identical tracks give identical results.
type Classifier interface {
	Name() string
	Classify(track *textrack.Track) Category
	Decide(tracks []*textrack.Track) Result
}

const (
	StrategyRule     = "rule"
	StrategyWeighted = "weighted"
)

// Options selects and tunes a classifier.
type Options struct {
	Strategy               string
	Rules                  RuleThresholds
	SubtitleScoreThreshold float64
}

// OptionsFromConfig maps the classifier config section onto Options.
func OptionsFromConfig(cfg config.Classifier) Options {
	return Options{
		Strategy: cfg.Strategy,
		Rules: RuleThresholds{
			StaticMinPresence:       cfg.StaticMinPresence,
			StaticMaxChange:         cfg.StaticMaxChange,
			SubtitleMinChangeRate:   cfg.SubtitleMinChangeRate,
			ScreencastMinDetections: cfg.ScreencastMinDetections,
			IgnoreStatic:            cfg.IgnoreStatic,
			IgnoreScreencast:        cfg.IgnoreScreencast,
		},
		SubtitleScoreThreshold: cfg.SubtitleScoreThreshold,
	}
}

// New returns the classifier named by opts.Strategy.
func New(opts Options) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Strategy)) {
	case StrategyRule:
		return NewRuleBased(opts.Rules), nil
	case StrategyWeighted, "":
		return NewWeightedScore(opts.SubtitleScoreThreshold), nil
	default:
		return nil, fmt.Errorf("classifier strategy: unsupported value %q", opts.Strategy)
	}
}

// usable filters out nil and empty tracks.
func usable(tracks []*textrack.Track) []*textrack.Track {
	out := make([]*textrack.Track, 0, len(tracks))
	for _, track := range tracks {
		if track != nil && len(track.Detections) > 0 {
			out = append(out, track)
		}
	}
	return out
}

func noText(name string) Result {
	return Result{
		HasSubtitles:     false,
		Confidence:       0.90,
		Reason:           "no text detected",
		DecisionLogic:    LogicNoText,
		Classifier:       name,
		TracksByCategory: map[Category]int{},
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
