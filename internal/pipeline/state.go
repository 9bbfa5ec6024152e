package pipeline

import (
	"path/filepath"
	"strings"

	"subguard/internal/fileutil"
	"subguard/internal/status"
)

// State is the position of a clip in the pipeline.
type State string

const (
	StateQueued       State = "queued"
	StateTransforming State = "transforming"
	StateValidating   State = "validating"
	StateApproved     State = "approved"
	StateRejected     State = "rejected"
	// StateFailed is reported for a run that stopped early. It is never
	// persisted; the clip stays unjudged.
	StateFailed State = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateRejected, StateFailed:
		return true
	default:
		return false
	}
}

// stateForVerdict maps a stored verdict onto its terminal state.
func stateForVerdict(v status.Verdict) State {
	if v == status.VerdictRejected {
		return StateRejected
	}
	return StateApproved
}

// Marker is the parsed form of a validation-stage file name.
type Marker struct {
	JobID   string
	VideoID string
	Ext     string
}

// MarkerName builds the validation-stage file name
// <jobID>_PROCESSING_<videoID><ext>.
func MarkerName(jobID, videoID, ext string) string {
	return jobID + status.ProcessingMarker + videoID + ext
}

// ParseMarker extracts the job and video id from a validation-stage file
// name. It reports false for names that do not carry the marker.
func ParseMarker(name string) (Marker, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, fileutil.PartialSuffix) {
		return Marker{}, false
	}
	idx := strings.Index(base, status.ProcessingMarker)
	if idx <= 0 {
		return Marker{}, false
	}
	rest := base[idx+len(status.ProcessingMarker):]
	ext := filepath.Ext(rest)
	videoID := strings.TrimSuffix(rest, ext)
	if videoID == "" {
		return Marker{}, false
	}
	return Marker{JobID: base[:idx], VideoID: videoID, Ext: ext}, true
}
