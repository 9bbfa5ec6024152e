package classify

import (
	"math"

	"subguard/internal/textrack"
)

// DefaultSubtitleScoreThreshold is the final score at or above which a track
// is labelled a subtitle. Empirically calibrated.
const DefaultSubtitleScoreThreshold = 0.75

// Signal weights; they sum to 1.
const (
	weightRhythm     = 0.20
	weightLifespan   = 0.20
	weightStability  = 0.15
	weightUniqueness = 0.20
	weightVertical   = 0.15
	weightDensity    = 0.10
)

const (
	rhythmMinGapSeconds   = 0.3
	rhythmMaxGapSeconds   = 3.0
	rhythmMinRegularity   = 0.4
	lifespanMinSeconds    = 0.5
	lifespanMaxSeconds    = 8.0
	animatedLogoMinScore  = 0.40
	noiseMinDetections    = 5
	noiseMinAvgConfidence = 0.5
)

// Signal names used in TrackVerdict.Signals.
const (
	SignalRhythm     = "rhythm"
	SignalLifespan   = "lifespan"
	SignalStability  = "stability"
	SignalUniqueness = "uniqueness"
	SignalVertical   = "vertical"
	SignalDensity    = "density"
)

// WeightedScore blends six per-track signals into a final score.
type WeightedScore struct {
	threshold float64
}

// NewWeightedScore returns a weighted-score classifier. A non-positive
// threshold selects DefaultSubtitleScoreThreshold.
func NewWeightedScore(threshold float64) *WeightedScore {
	if threshold <= 0 {
		threshold = DefaultSubtitleScoreThreshold
	}
	return &WeightedScore{threshold: threshold}
}

func (c *WeightedScore) Name() string { return StrategyWeighted }

// Signals maps a track's metrics onto the six [0,1] signals.
func Signals(m textrack.Metrics) map[string]float64 {
	return map[string]float64{
		SignalRhythm:     rhythmSignal(m),
		SignalLifespan:   lifespanSignal(m.MeanLifespanSeconds),
		SignalStability:  math.Min(1, math.Max(0, m.PositionStability)),
		SignalUniqueness: step(m.UniqueTextRatio, 0.6, 0.3),
		SignalVertical:   step(m.BottomRatio, 0.7, 0.4),
		SignalDensity:    step(m.Density, 0.15, 0.05),
	}
}

// Score returns the weighted signal sum rounded to six decimals.
func Score(signals map[string]float64) float64 {
	sum := signals[SignalRhythm]*weightRhythm +
		signals[SignalLifespan]*weightLifespan +
		signals[SignalStability]*weightStability +
		signals[SignalUniqueness]*weightUniqueness +
		signals[SignalVertical]*weightVertical +
		signals[SignalDensity]*weightDensity
	return math.Round(sum*1e6) / 1e6
}

func rhythmSignal(m textrack.Metrics) float64 {
	if len(m.GapSeconds) < 2 {
		return 0
	}
	inRange := m.MeanGapSeconds >= rhythmMinGapSeconds && m.MeanGapSeconds <= rhythmMaxGapSeconds
	regular := m.GapRegularity >= rhythmMinRegularity
	switch {
	case inRange && regular:
		return 1
	case inRange || regular:
		return 0.5
	default:
		return 0
	}
}

func lifespanSignal(seconds float64) float64 {
	switch {
	case seconds < lifespanMinSeconds:
		return 0.3
	case seconds <= lifespanMaxSeconds:
		return 1
	default:
		return 0
	}
}

func step(value, high, low float64) float64 {
	switch {
	case value >= high:
		return 1
	case value >= low:
		return 0.5
	default:
		return 0
	}
}

func (c *WeightedScore) verdict(track *textrack.Track) TrackVerdict {
	signals := Signals(track.Metrics)
	score := Score(signals)
	return TrackVerdict{
		TrackID:  track.ID,
		ROI:      track.ROI,
		Category: c.categorize(track, score),
		Score:    score,
		Signals:  signals,
	}
}

// categorize walks the category cascade. Cascade conditions use raw metrics.
func (c *WeightedScore) categorize(track *textrack.Track, score float64) Category {
	m := track.Metrics
	switch {
	case score >= c.threshold:
		return CategorySubtitle
	case score >= animatedLogoMinScore && m.UniqueTextRatio < 0.5:
		return CategoryAnimatedLogo
	case m.UniqueTextRatio < 0.2 && m.PositionStability > 0.8:
		return CategoryStaticText
	case m.BottomRatio < 0.3 && m.Density > 0.1:
		return CategoryScreencast
	case len(track.Detections) < noiseMinDetections || m.AvgConfidence < noiseMinAvgConfidence:
		return CategoryNoise
	default:
		return CategoryNoise
	}
}

// Classify labels one track.
func (c *WeightedScore) Classify(track *textrack.Track) Category {
	if track == nil || len(track.Detections) == 0 {
		return CategoryNoise
	}
	return c.verdict(track).Category
}

// Decide rejects the clip when any track scores as a subtitle.
func (c *WeightedScore) Decide(tracks []*textrack.Track) Result {
	tracks = usable(tracks)
	if len(tracks) == 0 {
		return noText(c.Name())
	}

	res := Result{Classifier: c.Name(), TracksByCategory: map[Category]int{}}
	for _, track := range tracks {
		v := c.verdict(track)
		res.TracksByCategory[v.Category]++
		res.Verdicts = append(res.Verdicts, v)
		if v.Category == CategorySubtitle {
			res.SubtitleTracks = append(res.SubtitleTracks, track)
		}
	}

	if n := len(res.SubtitleTracks); n > 0 {
		res.HasSubtitles = true
		res.Confidence = math.Min(0.95, 0.75+0.05*float64(n))
		res.Reason = plural(n, "subtitle track") + " scored above threshold"
		res.DecisionLogic = LogicSubtitleTracks
		return res
	}
	res.Confidence = 0.90
	res.Reason = "no subtitle tracks among " + plural(len(tracks), "text track")
	res.DecisionLogic = LogicScoreBelow
	return res
}
