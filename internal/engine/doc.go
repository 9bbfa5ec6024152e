// Package engine holds the concrete detector backends that produce verdicts
// for a clip.
//
// TrackEngine samples frames, runs a frame-level text detector over them,
// links the detections into tracks, and hands the tracks to a classifier.
// CommandEngine delegates to an external program that prints a JSON verdict.
// Both satisfy ensemble.Engine; BuildRegistry wires the configured set.
package engine
