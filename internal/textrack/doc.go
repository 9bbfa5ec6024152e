// Package textrack links per-frame text detections into temporal tracks and
// derives the per-track signals the classifiers consume.
//
// A Tracker is fed one AddFrame call per sampled frame. Detections are
// associated with existing tracks inside their vertical band (ROI) using a
// greedy IoU/center-distance cost assignment; unmatched detections start new
// tracks. Finalize freezes the tracks and computes their Metrics.
package textrack
