package textrack

import (
	"errors"
	"log/slog"
	"math"
	"sort"

	"subguard/internal/logging"
)

// ErrFinalized is returned by AddFrame once Finalize has been called.
var ErrFinalized = errors.New("tracker finalized")

const (
	iouWeight      = 0.7
	distanceWeight = 0.3
	// unassignableCost marks pairs that fail both the IoU and distance gates.
	unassignableCost = 999.0
)

// Config holds association and metric settings. Zero fields take defaults.
type Config struct {
	IoUThreshold         float64
	MaxDistancePx        float64
	SampleFPS            float64
	TextSimilarityCutoff float64
	PositionVarianceNorm float64
}

// DefaultConfig returns the calibrated tracker settings.
func DefaultConfig() Config {
	return Config{
		IoUThreshold:         DefaultIoUThreshold,
		MaxDistancePx:        DefaultMaxDistancePx,
		SampleFPS:            DefaultSampleFPS,
		TextSimilarityCutoff: DefaultTextSimilarityCutoff,
		PositionVarianceNorm: DefaultPositionVarianceNorm,
	}
}

const (
	DefaultIoUThreshold  = 0.3
	DefaultMaxDistancePx = 50.0
	DefaultSampleFPS     = 2.0
)

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.IoUThreshold <= 0 {
		c.IoUThreshold = d.IoUThreshold
	}
	if c.MaxDistancePx <= 0 {
		c.MaxDistancePx = d.MaxDistancePx
	}
	if c.SampleFPS <= 0 {
		c.SampleFPS = d.SampleFPS
	}
	if c.TextSimilarityCutoff <= 0 {
		c.TextSimilarityCutoff = d.TextSimilarityCutoff
	}
	if c.PositionVarianceNorm <= 0 {
		c.PositionVarianceNorm = d.PositionVarianceNorm
	}
	return c
}

func (c Config) metrics() MetricsConfig {
	return MetricsConfig{
		SampleFPS:            c.SampleFPS,
		TextSimilarityCutoff: c.TextSimilarityCutoff,
		PositionVarianceNorm: c.PositionVarianceNorm,
	}
}

// Track is a time-ordered run of detections believed to be the same on-screen
// text. Metrics is populated by Finalize.
type Track struct {
	ID         int
	ROI        ROI
	Detections []Detection
	Metrics    Metrics
}

// Last returns the most recent detection.
func (t *Track) Last() Detection {
	return t.Detections[len(t.Detections)-1]
}

// Frames returns the frame indices of the track's detections.
func (t *Track) Frames() []int {
	frames := make([]int, len(t.Detections))
	for i, d := range t.Detections {
		frames[i] = d.FrameIndex
	}
	return frames
}

// Tracker associates detections across frames. It is not safe for
// concurrent use; each clip gets its own Tracker.
type Tracker struct {
	cfg       Config
	logger    *slog.Logger
	tracks    []*Track
	nextID    int
	frames    int
	lastFrame int
	dropped   int
	finalized bool
}

// NewTracker returns a Tracker using cfg, with zero fields defaulted.
func NewTracker(cfg Config, logger *slog.Logger) *Tracker {
	return &Tracker{
		cfg:       cfg.withDefaults(),
		logger:    logging.NewComponentLogger(logger, "tracker"),
		nextID:    1,
		lastFrame: -1,
	}
}

// AddFrame consumes the detections of one sampled frame. Malformed
// detections, including those whose frame index does not advance past the
// previous frame, are dropped and counted.
func (t *Tracker) AddFrame(dets []Detection) error {
	if t.finalized {
		return ErrFinalized
	}
	t.frames++

	valid := make([]Detection, 0, len(dets))
	maxFrame := t.lastFrame
	for _, d := range dets {
		if err := d.Validate(); err != nil {
			t.drop(d, err.Error())
			continue
		}
		if d.FrameIndex <= t.lastFrame {
			t.drop(d, "frame index does not advance")
			continue
		}
		valid = append(valid, d)
		maxFrame = max(maxFrame, d.FrameIndex)
	}
	t.lastFrame = maxFrame
	if len(valid) == 0 {
		return nil
	}

	if len(t.tracks) == 0 {
		for _, d := range valid {
			t.spawn(d)
		}
		return nil
	}

	claimed := make([]bool, len(valid))
	for _, roi := range ROIs {
		t.associate(roi, valid, claimed)
	}
	for i, d := range valid {
		if !claimed[i] {
			t.spawn(d)
		}
	}
	return nil
}

type candidate struct {
	track *Track
	det   int
	cost  float64
}

// associate greedily assigns detections in one band to that band's tracks by
// ascending cost. Ties fall back to track id, then detection order.
func (t *Tracker) associate(roi ROI, dets []Detection, claimed []bool) {
	var candidates []candidate
	for _, track := range t.tracks {
		if track.ROI != roi {
			continue
		}
		last := track.Last()
		for i, d := range dets {
			if d.ROI != roi || claimed[i] || d.FrameIndex <= last.FrameIndex {
				continue
			}
			cost := t.cost(last.Box, d.Box)
			if cost >= unassignableCost {
				continue
			}
			candidates = append(candidates, candidate{track: track, det: i, cost: cost})
		}
	}
	if len(candidates) == 0 {
		return
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.cost != b.cost {
			return a.cost < b.cost
		}
		if a.track.ID != b.track.ID {
			return a.track.ID < b.track.ID
		}
		return a.det < b.det
	})

	used := make(map[int]bool)
	for _, c := range candidates {
		if used[c.track.ID] || claimed[c.det] {
			continue
		}
		used[c.track.ID] = true
		claimed[c.det] = true
		c.track.Detections = append(c.track.Detections, dets[c.det])
	}
}

// cost blends IoU and center proximity into [0,1]; lower is better.
func (t *Tracker) cost(prev, next BBox) float64 {
	iou := IoU(prev, next)
	dist := CenterDistance(prev, next)
	if iou < t.cfg.IoUThreshold && dist > t.cfg.MaxDistancePx {
		return unassignableCost
	}
	distSim := math.Max(0, 1-dist/t.cfg.MaxDistancePx)
	return 1 - (iou*iouWeight + distSim*distanceWeight)
}

func (t *Tracker) spawn(d Detection) {
	t.tracks = append(t.tracks, &Track{
		ID:         t.nextID,
		ROI:        d.ROI,
		Detections: []Detection{d},
	})
	t.nextID++
}

func (t *Tracker) drop(d Detection, reason string) {
	t.dropped++
	t.logger.Debug("detection dropped",
		logging.Int("frame_index", d.FrameIndex),
		logging.String("reason", reason),
	)
}

// Finalize computes metrics for every track over the frames processed and
// returns the tracks ordered by id. Later AddFrame calls fail with
// ErrFinalized; repeated Finalize calls return the same tracks.
func (t *Tracker) Finalize() []*Track {
	if !t.finalized {
		t.finalized = true
		cfg := t.cfg.metrics()
		for _, track := range t.tracks {
			track.Metrics = ComputeMetrics(track, t.frames, cfg)
		}
		t.logger.Debug("tracking finalized",
			logging.Int("frames", t.frames),
			logging.Int("tracks", len(t.tracks)),
			logging.Int("dropped", t.dropped),
		)
	}
	out := make([]*Track, len(t.tracks))
	copy(out, t.tracks)
	return out
}

// FramesSeen returns the number of AddFrame calls accepted.
func (t *Tracker) FramesSeen() int { return t.frames }

// Dropped returns the number of malformed detections discarded.
func (t *Tracker) Dropped() int { return t.dropped }
