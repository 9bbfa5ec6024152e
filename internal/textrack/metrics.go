package textrack

import (
	"math"

	"subguard/internal/textutil"
)

const (
	// DefaultTextSimilarityCutoff is the similarity below which consecutive
	// detections count as a text change. Empirically calibrated.
	DefaultTextSimilarityCutoff = 0.70
	// DefaultPositionVarianceNorm scales y-position variance into the
	// stability score. Empirically calibrated.
	DefaultPositionVarianceNorm = 100.0
)

// MetricsConfig carries the constants the metric formulas depend on.
type MetricsConfig struct {
	SampleFPS            float64
	TextSimilarityCutoff float64
	PositionVarianceNorm float64
}

// Metrics is the derived view of a finished track. All durations are in
// seconds at the sampling rate.
type Metrics struct {
	DetectionCount        int       `json:"detection_count"`
	PresenceRatio         float64   `json:"presence_ratio"`
	TextChanges           int       `json:"text_changes"`
	TextChangeRate        float64   `json:"text_change_rate"`
	GapFrames             []int     `json:"gap_frames,omitempty"`
	GapSeconds            []float64 `json:"gap_seconds,omitempty"`
	MeanGapSeconds        float64   `json:"mean_gap_seconds"`
	GapRegularity         float64   `json:"gap_regularity"`
	MeanLifespanSeconds   float64   `json:"mean_lifespan_seconds"`
	MaxLifespanSeconds    float64   `json:"max_lifespan_seconds"`
	PositionStability     float64   `json:"position_stability"`
	UniqueTextRatio       float64   `json:"unique_text_ratio"`
	BottomRatio           float64   `json:"bottom_ratio"`
	ActiveDurationSeconds float64   `json:"active_duration_seconds"`
	Density               float64   `json:"density"`
	AvgConfidence         float64   `json:"avg_confidence"`
}

// ComputeMetrics derives Metrics from a track over totalFrames sampled frames.
// It is a pure function of its inputs.
func ComputeMetrics(track *Track, totalFrames int, cfg MetricsConfig) Metrics {
	if track == nil || len(track.Detections) == 0 {
		return Metrics{}
	}
	if cfg.SampleFPS <= 0 {
		cfg.SampleFPS = DefaultSampleFPS
	}
	if cfg.TextSimilarityCutoff <= 0 {
		cfg.TextSimilarityCutoff = DefaultTextSimilarityCutoff
	}
	if cfg.PositionVarianceNorm <= 0 {
		cfg.PositionVarianceNorm = DefaultPositionVarianceNorm
	}

	dets := track.Detections
	n := len(dets)
	texts := make([]string, n)
	for i, d := range dets {
		texts[i] = textutil.Normalize(d.Text)
	}

	m := Metrics{DetectionCount: n}
	if totalFrames > 0 {
		m.PresenceRatio = float64(n) / float64(totalFrames)
	}

	for i := 1; i < n; i++ {
		if textutil.Similarity(texts[i-1], texts[i]) < cfg.TextSimilarityCutoff {
			m.TextChanges++
		}
	}
	if n > 1 {
		m.TextChangeRate = float64(m.TextChanges) / float64(n-1)
	}

	m.GapFrames = Gaps(track.Frames())
	if len(m.GapFrames) > 0 {
		m.GapSeconds = make([]float64, len(m.GapFrames))
		for i, g := range m.GapFrames {
			m.GapSeconds[i] = float64(g) / cfg.SampleFPS
		}
		m.MeanGapSeconds = mean(m.GapSeconds)
	}
	if len(m.GapSeconds) >= 2 {
		if mu := m.MeanGapSeconds; mu > 0 {
			cv := math.Sqrt(variance(m.GapSeconds)) / mu
			m.GapRegularity = 1 / (1 + cv)
		}
	}

	m.MeanLifespanSeconds, m.MaxLifespanSeconds = lifespans(dets, texts, cfg.SampleFPS)

	ys := make([]float64, n)
	distinct := make(map[string]struct{}, n)
	bottom := 0
	confSum := 0.0
	for i, d := range dets {
		ys[i] = d.Box.Y
		distinct[texts[i]] = struct{}{}
		if d.ROI == ROIBottom {
			bottom++
		}
		confSum += d.Confidence
	}
	m.PositionStability = math.Min(1, math.Max(0, 1-variance(ys)/cfg.PositionVarianceNorm))
	m.UniqueTextRatio = float64(len(distinct)) / float64(n)
	m.BottomRatio = float64(bottom) / float64(n)
	m.AvgConfidence = confSum / float64(n)

	m.ActiveDurationSeconds = float64(dets[n-1].FrameIndex-dets[0].FrameIndex) / cfg.SampleFPS
	if m.ActiveDurationSeconds > 0 {
		m.Density = float64(m.TextChanges) / m.ActiveDurationSeconds
	}
	return m
}

// lifespans groups consecutive detections sharing identical text and returns
// the mean and max group span in seconds. A group covering frames f..g spans
// (g-f+1) frames.
func lifespans(dets []Detection, texts []string, fps float64) (float64, float64) {
	var spans []float64
	start := 0
	for i := 1; i <= len(dets); i++ {
		if i < len(dets) && texts[i] == texts[start] {
			continue
		}
		frames := dets[i-1].FrameIndex - dets[start].FrameIndex + 1
		spans = append(spans, float64(frames)/fps)
		start = i
	}
	if len(spans) == 0 {
		return 0, 0
	}
	longest := spans[0]
	for _, s := range spans[1:] {
		longest = math.Max(longest, s)
	}
	return mean(spans), longest
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// variance is the population variance.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mu := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - mu) * (v - mu)
	}
	return sum / float64(len(values))
}
