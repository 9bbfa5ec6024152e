// Package ocr turns sampled frames into text detections with Tesseract.
//
// The gosseract binding needs cgo and the tesseract headers, so it is only
// compiled with the "tesseract" build tag. Without the tag every call fails
// with ErrUnavailable and the ocr engine kind cannot be configured.
package ocr

import (
	"context"
	"errors"
	"image"
	"strings"

	"subguard/internal/services"
	"subguard/internal/textrack"
	"subguard/internal/textutil"
)

// ErrUnavailable means the binary was built without tesseract support.
var ErrUnavailable = errors.New("tesseract support not compiled in (build with -tags tesseract)")

// DefaultMinConfidence drops text lines tesseract is unsure about.
const DefaultMinConfidence = 0.5

// Options tunes the detector.
type Options struct {
	Languages     []string
	MinConfidence float64
}

// line is one recognised text line. Confidence is tesseract's 0-100 scale.
type line struct {
	Rect       image.Rectangle
	Text       string
	Confidence float64
}

// Tesseract detects text lines in frame images.
type Tesseract struct {
	languages     []string
	minConfidence float64
	read          func(path string, languages []string) ([]line, error)
}

// New returns a Tesseract detector.
func New(opts Options) *Tesseract {
	langs := opts.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	minConf := opts.MinConfidence
	if minConf <= 0 {
		minConf = DefaultMinConfidence
	}
	return &Tesseract{languages: langs, minConfidence: minConf, read: readLines}
}

// DetectFrame returns the text lines found in the image at path.
func (t *Tesseract) DetectFrame(ctx context.Context, path string, frameIndex, frameHeight int) ([]textrack.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lines, err := t.read(path, t.languages)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, services.Wrap(services.ErrConfiguration, "validate", "ocr", "", err)
		}
		return nil, services.Wrap(services.ErrDetector, "validate", "ocr", path, err)
	}
	return toDetections(lines, frameIndex, frameHeight, t.minConfidence), nil
}

func toDetections(lines []line, frameIndex, frameHeight int, minConfidence float64) []textrack.Detection {
	out := make([]textrack.Detection, 0, len(lines))
	for _, l := range lines {
		text := textutil.Normalize(strings.Join(strings.Fields(l.Text), " "))
		if text == "" || l.Rect.Empty() {
			continue
		}
		conf := l.Confidence / 100
		if conf < minConfidence {
			continue
		}
		box := textrack.BBox{
			X: float64(l.Rect.Min.X),
			Y: float64(l.Rect.Min.Y),
			W: float64(l.Rect.Dx()),
			H: float64(l.Rect.Dy()),
		}
		out = append(out, textrack.Detection{
			FrameIndex: frameIndex,
			Box:        box,
			Text:       text,
			Confidence: min(conf, 1),
			ROI:        textrack.ROIForBox(box, float64(frameHeight)),
		})
	}
	return out
}
