// Package workflow drives batches of clips through the pipeline.
//
// The Manager runs a bounded worker pool over a slice of pipeline requests,
// giving every clip its own request id and logger, and runs the orphan sweep
// on an interval while a batch is active. AcquireLock keeps a single batch
// runner per state directory; Discover turns a directory of video files into
// requests.
package workflow
