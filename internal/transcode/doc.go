// Package transcode normalizes raw clips into the working format the
// detectors read.
//
// Two backends exist. FFmpeg shells out to ffmpeg, scaling to a target height
// and dropping audio. Drapto encodes in-process with the drapto library. Both
// write to a caller-chosen destination; the pipeline owns temp naming and the
// final rename.
package transcode
