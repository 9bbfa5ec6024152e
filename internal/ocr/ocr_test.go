package ocr

import (
	"context"
	"errors"
	"image"
	"testing"

	"subguard/internal/services"
	"subguard/internal/textrack"
)

func TestToDetections(t *testing.T) {
	lines := []line{
		{Rect: image.Rect(100, 620, 500, 660), Text: "  Hello   there ", Confidence: 91},
		{Rect: image.Rect(10, 10, 80, 40), Text: "LOGO", Confidence: 88},
		{Rect: image.Rect(10, 300, 80, 340), Text: "faint", Confidence: 20},
		{Rect: image.Rect(0, 0, 0, 0), Text: "empty box", Confidence: 99},
		{Rect: image.Rect(0, 0, 10, 10), Text: "   ", Confidence: 99},
	}
	dets := toDetections(lines, 7, 720, 0.5)
	if len(dets) != 2 {
		t.Fatalf("detections = %d, want 2: %+v", len(dets), dets)
	}
	first := dets[0]
	if first.Text != "Hello there" || first.ROI != textrack.ROIBottom || first.FrameIndex != 7 {
		t.Fatalf("unexpected first detection %+v", first)
	}
	if first.Box != (textrack.BBox{X: 100, Y: 620, W: 400, H: 40}) {
		t.Fatalf("box = %+v", first.Box)
	}
	if first.Confidence != 0.91 {
		t.Fatalf("confidence = %v", first.Confidence)
	}
	if dets[1].ROI != textrack.ROITop {
		t.Fatalf("roi = %q, want top", dets[1].ROI)
	}
	for _, d := range dets {
		if err := d.Validate(); err != nil {
			t.Fatalf("detection invalid: %v", err)
		}
	}
}

func TestDetectFrameWrapsErrors(t *testing.T) {
	tess := New(Options{})
	tess.read = func(string, []string) ([]line, error) { return nil, ErrUnavailable }
	if _, err := tess.DetectFrame(context.Background(), "f.png", 0, 720); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	tess.read = func(string, []string) ([]line, error) { return nil, errors.New("bad image") }
	if _, err := tess.DetectFrame(context.Background(), "f.png", 0, 720); !errors.Is(err, services.ErrDetector) {
		t.Fatalf("expected detector error, got %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	tess := New(Options{})
	if len(tess.languages) != 1 || tess.languages[0] != "eng" || tess.minConfidence != DefaultMinConfidence {
		t.Fatalf("unexpected defaults %+v", tess)
	}
}
