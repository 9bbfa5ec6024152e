package textrack_test

import (
	"math"
	"reflect"
	"testing"

	"subguard/internal/textrack"
)

func trackOf(frames []int, texts []string, ys []float64) *textrack.Track {
	track := &textrack.Track{ID: 1, ROI: textrack.ROIBottom}
	for i, f := range frames {
		y := 600.0
		if ys != nil {
			y = ys[i]
		}
		track.Detections = append(track.Detections, textrack.Detection{
			FrameIndex: f,
			Box:        textrack.BBox{X: 100, Y: y, W: 300, H: 40},
			Text:       texts[i],
			Confidence: 0.8,
			ROI:        textrack.ROIBottom,
		})
	}
	return track
}

func defaultMetricsConfig() textrack.MetricsConfig {
	return textrack.MetricsConfig{SampleFPS: 2, TextSimilarityCutoff: 0.70, PositionVarianceNorm: 100}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTextChangeRate(t *testing.T) {
	track := trackOf([]int{0, 1, 2, 3}, []string{"A", "A", "B", "B"}, nil)
	m := textrack.ComputeMetrics(track, 4, defaultMetricsConfig())
	if !approx(m.TextChangeRate, 1.0/3.0) {
		t.Fatalf("text change rate = %v, want 1/3", m.TextChangeRate)
	}
	if m.TextChanges != 1 {
		t.Fatalf("expected 1 change, got %d", m.TextChanges)
	}
	if m.UniqueTextRatio != 0.5 {
		t.Fatalf("unique text ratio = %v", m.UniqueTextRatio)
	}
	if !approx(m.MeanLifespanSeconds, 1) || !approx(m.MaxLifespanSeconds, 1) {
		t.Fatalf("lifespans = %v/%v, want 1/1", m.MeanLifespanSeconds, m.MaxLifespanSeconds)
	}
	if !approx(m.ActiveDurationSeconds, 1.5) {
		t.Fatalf("active duration = %v", m.ActiveDurationSeconds)
	}
	if !approx(m.Density, 1/1.5) {
		t.Fatalf("density = %v", m.Density)
	}
}

func TestSimilarTextIsNotAChange(t *testing.T) {
	track := trackOf([]int{0, 1}, []string{"Hello there", "Hello therr"}, nil)
	m := textrack.ComputeMetrics(track, 2, defaultMetricsConfig())
	if m.TextChanges != 0 {
		t.Fatalf("expected OCR jitter to be ignored, got %d changes", m.TextChanges)
	}
}

func TestSingleDetectionHasZeroRates(t *testing.T) {
	track := trackOf([]int{5}, []string{"solo"}, nil)
	m := textrack.ComputeMetrics(track, 10, defaultMetricsConfig())
	if m.TextChangeRate != 0 || m.GapRegularity != 0 || m.Density != 0 {
		t.Fatalf("unexpected metrics for single detection: %+v", m)
	}
	if !approx(m.MeanLifespanSeconds, 0.5) {
		t.Fatalf("single frame lifespan = %v, want 0.5", m.MeanLifespanSeconds)
	}
	if m.PresenceRatio != 0.1 {
		t.Fatalf("presence = %v", m.PresenceRatio)
	}
}

func TestGapRegularity(t *testing.T) {
	regular := trackOf([]int{0, 3, 6, 9}, []string{"a", "b", "c", "d"}, nil)
	m := textrack.ComputeMetrics(regular, 10, defaultMetricsConfig())
	if !reflect.DeepEqual(m.GapFrames, []int{2, 2, 2}) {
		t.Fatalf("gap frames = %v", m.GapFrames)
	}
	if !approx(m.MeanGapSeconds, 1) {
		t.Fatalf("mean gap seconds = %v", m.MeanGapSeconds)
	}
	if !approx(m.GapRegularity, 1) {
		t.Fatalf("regular gaps should give regularity 1, got %v", m.GapRegularity)
	}

	irregular := trackOf([]int{0, 2, 10}, []string{"a", "b", "c"}, nil)
	m = textrack.ComputeMetrics(irregular, 11, defaultMetricsConfig())
	// gaps [1,7] seconds [0.5,3.5]: mean 2, std 1.5, cv 0.75
	if !approx(m.GapRegularity, 1/1.75) {
		t.Fatalf("irregular gap regularity = %v", m.GapRegularity)
	}

	oneGap := trackOf([]int{0, 4}, []string{"a", "b"}, nil)
	if got := textrack.ComputeMetrics(oneGap, 5, defaultMetricsConfig()).GapRegularity; got != 0 {
		t.Fatalf("fewer than 2 gaps should give 0, got %v", got)
	}
}

func TestPositionStability(t *testing.T) {
	steady := trackOf([]int{0, 1, 2}, []string{"a", "a", "a"}, []float64{600, 600, 600})
	if got := textrack.ComputeMetrics(steady, 3, defaultMetricsConfig()).PositionStability; got != 1 {
		t.Fatalf("steady stability = %v", got)
	}
	jumpy := trackOf([]int{0, 1}, []string{"a", "a"}, []float64{580, 600})
	if got := textrack.ComputeMetrics(jumpy, 2, defaultMetricsConfig()).PositionStability; !approx(got, 0) {
		t.Fatalf("variance 100 should give stability 0, got %v", got)
	}
	wild := trackOf([]int{0, 1}, []string{"a", "a"}, []float64{0, 600})
	if got := textrack.ComputeMetrics(wild, 2, defaultMetricsConfig()).PositionStability; got != 0 {
		t.Fatalf("stability must not go negative, got %v", got)
	}
}

func TestComputeMetricsIsDeterministic(t *testing.T) {
	track := trackOf([]int{0, 2, 4, 7}, []string{"one", "two", "two", "three"}, []float64{600, 602, 598, 601})
	a := textrack.ComputeMetrics(track, 8, defaultMetricsConfig())
	b := textrack.ComputeMetrics(track, 8, defaultMetricsConfig())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("metrics differ across runs:\n%+v\n%+v", a, b)
	}
}

func TestComputeMetricsEmptyTrack(t *testing.T) {
	if m := textrack.ComputeMetrics(&textrack.Track{}, 5, defaultMetricsConfig()); m.DetectionCount != 0 {
		t.Fatalf("expected zero metrics, got %+v", m)
	}
	if m := textrack.ComputeMetrics(nil, 5, defaultMetricsConfig()); m.DetectionCount != 0 {
		t.Fatalf("expected zero metrics for nil, got %+v", m)
	}
}
