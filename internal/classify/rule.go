package classify

import (
	"math"

	"subguard/internal/textrack"
)

// RuleThresholds tunes the rule cascade. IgnoreStatic and IgnoreScreencast
// express the content policy: ignored overlays never cause a rejection.
type RuleThresholds struct {
	StaticMinPresence       float64
	StaticMaxChange         float64
	SubtitleMinChangeRate   float64
	ScreencastMinDetections int
	IgnoreStatic            bool
	IgnoreScreencast        bool
}

// DefaultRuleThresholds returns the shipped rule settings.
func DefaultRuleThresholds() RuleThresholds {
	return RuleThresholds{
		StaticMinPresence:       0.8,
		StaticMaxChange:         0.1,
		SubtitleMinChangeRate:   0.3,
		ScreencastMinDetections: 10,
		IgnoreStatic:            true,
		IgnoreScreencast:        true,
	}
}

const (
	screencastMinChangeRate   = 0.1
	offsetSubtitleMaxPresence = 0.5
	suspiciousAmbiguousCount  = 5
)

// RuleBased labels tracks with a first-match-wins rule cascade.
type RuleBased struct {
	rules RuleThresholds
}

// NewRuleBased returns a rule-based classifier.
func NewRuleBased(rules RuleThresholds) *RuleBased {
	return &RuleBased{rules: rules}
}

func (c *RuleBased) Name() string { return StrategyRule }

// Classify applies the rules in priority order.
func (c *RuleBased) Classify(track *textrack.Track) Category {
	if track == nil || len(track.Detections) == 0 {
		return CategoryAmbiguous
	}
	m := track.Metrics
	r := c.rules
	switch {
	case m.PresenceRatio >= r.StaticMinPresence && m.TextChangeRate <= r.StaticMaxChange:
		return CategoryStatic
	case track.ROI == textrack.ROIBottom && m.TextChangeRate >= r.SubtitleMinChangeRate:
		return CategorySubtitle
	case (track.ROI == textrack.ROITop || track.ROI == textrack.ROIMiddle) &&
		len(track.Detections) >= r.ScreencastMinDetections && m.TextChangeRate > screencastMinChangeRate:
		return CategoryScreencast
	case m.TextChangeRate >= r.SubtitleMinChangeRate && m.PresenceRatio < offsetSubtitleMaxPresence:
		// subtitles rendered away from the bottom band
		return CategorySubtitle
	default:
		return CategoryAmbiguous
	}
}

// Decide aggregates track labels into a clip verdict.
func (c *RuleBased) Decide(tracks []*textrack.Track) Result {
	tracks = usable(tracks)
	if len(tracks) == 0 {
		return noText(c.Name())
	}

	res := Result{Classifier: c.Name(), TracksByCategory: map[Category]int{}}
	for _, track := range tracks {
		cat := c.Classify(track)
		res.TracksByCategory[cat]++
		res.Verdicts = append(res.Verdicts, TrackVerdict{TrackID: track.ID, ROI: track.ROI, Category: cat})
		if cat == CategorySubtitle {
			res.SubtitleTracks = append(res.SubtitleTracks, track)
		}
	}

	counts := res.TracksByCategory
	subtitles := counts[CategorySubtitle]
	static := counts[CategoryStatic]
	screencast := counts[CategoryScreencast]
	ambiguous := counts[CategoryAmbiguous]
	ignored := (c.rules.IgnoreStatic && static > 0) || (c.rules.IgnoreScreencast && screencast > 0)

	switch {
	case subtitles > 0:
		res.HasSubtitles = true
		res.Confidence = math.Min(0.95, 0.70+0.10*float64(subtitles))
		res.Reason = plural(subtitles, "subtitle track") + " detected"
		res.DecisionLogic = LogicSubtitleTracks
	case ignored:
		res.Confidence = 0.85
		res.Reason = "only static or screencast text present"
		res.DecisionLogic = LogicIgnoredOverlays
	case ambiguous >= suspiciousAmbiguousCount:
		res.HasSubtitles = true
		res.Confidence = 0.55
		res.Reason = "suspicious: " + plural(ambiguous, "ambiguous track") + ", possibly missed subtitle"
		res.DecisionLogic = LogicSuspicious
	case ambiguous > 0:
		res.Confidence = 0.70
		res.Reason = plural(ambiguous, "ambiguous track") + " below suspicion threshold"
		res.DecisionLogic = LogicFewAmbiguous
	case static > 0 && !c.rules.IgnoreStatic:
		res.HasSubtitles = true
		res.Confidence = 0.75
		res.Reason = "static text present and policy does not ignore it"
		res.DecisionLogic = LogicStaticText
	default:
		res.Confidence = 0.90
		res.Reason = "all text resolved as non-subtitle"
		res.DecisionLogic = LogicResolved
	}
	return res
}
