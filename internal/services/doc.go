// Package services defines shared utilities consumed by the pipeline stages and
// the detector engines.
//
// Key responsibilities:
//   - Context helpers that stamp video IDs, job IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let callers decide
//     whether a failed clip stays eligible for retry.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
