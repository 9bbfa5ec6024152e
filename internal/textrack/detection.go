package textrack

import (
	"fmt"
	"math"
)

// ROI is the vertical band of the frame a detection falls in.
type ROI string

const (
	ROITop    ROI = "top"
	ROIMiddle ROI = "middle"
	ROIBottom ROI = "bottom"
)

// ROIs lists the bands in the order association visits them.
var ROIs = []ROI{ROITop, ROIMiddle, ROIBottom}

// Valid reports whether r is one of the known bands.
func (r ROI) Valid() bool {
	switch r {
	case ROITop, ROIMiddle, ROIBottom:
		return true
	default:
		return false
	}
}

// BBox is an axis-aligned rectangle in pixels. X and Y are the top-left corner.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the rectangle midpoint.
func (b BBox) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns W*H, or 0 for degenerate rectangles.
func (b BBox) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Detection is one observed text instance in one sampled frame.
type Detection struct {
	FrameIndex int     `json:"frame_index"`
	Box        BBox    `json:"bbox"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	ROI        ROI     `json:"roi"`
}

// Validate reports why d cannot be tracked, or nil.
func (d Detection) Validate() error {
	switch {
	case d.FrameIndex < 0:
		return fmt.Errorf("negative frame index %d", d.FrameIndex)
	case math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1:
		return fmt.Errorf("confidence %v outside [0,1]", d.Confidence)
	case !(d.Box.W > 0) || !(d.Box.H > 0):
		return fmt.Errorf("non-positive box %vx%v", d.Box.W, d.Box.H)
	case math.IsNaN(d.Box.X) || math.IsNaN(d.Box.Y):
		return fmt.Errorf("box origin is NaN")
	case !d.ROI.Valid():
		return fmt.Errorf("unknown roi %q", d.ROI)
	}
	return nil
}

// IoU returns the intersection-over-union of a and b. An empty union yields 0.
func IoU(a, b BBox) float64 {
	x1 := math.Max(a.X, b.X)
	y1 := math.Max(a.Y, b.Y)
	x2 := math.Min(a.X+a.W, b.X+b.W)
	y2 := math.Min(a.Y+a.H, b.Y+b.H)
	inter := 0.0
	if x2 > x1 && y2 > y1 {
		inter = (x2 - x1) * (y2 - y1)
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// CenterDistance returns the euclidean distance between the box centers.
func CenterDistance(a, b BBox) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return math.Hypot(ax-bx, ay-by)
}

// ROIForBox assigns a box to a band by splitting the frame height into
// thirds and testing the box's vertical center.
func ROIForBox(box BBox, frameHeight float64) ROI {
	if frameHeight <= 0 {
		return ROIBottom
	}
	_, cy := box.Center()
	switch {
	case cy < frameHeight/3:
		return ROITop
	case cy < 2*frameHeight/3:
		return ROIMiddle
	default:
		return ROIBottom
	}
}

// Gaps returns the number of missing frames between consecutive indices.
// Adjacent frames contribute nothing: [0,1,2,5,6,10] yields [2,3].
func Gaps(frames []int) []int {
	var gaps []int
	for i := 1; i < len(frames); i++ {
		if gap := frames[i] - frames[i-1] - 1; gap > 0 {
			gaps = append(gaps, gap)
		}
	}
	return gaps
}
