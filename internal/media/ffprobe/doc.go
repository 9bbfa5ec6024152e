// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// The detector engines use it to learn a clip's frame height, frame rate and
// duration before sampling frames.
package ffprobe
