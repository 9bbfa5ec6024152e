// Package pipeline moves one clip through transform, validation and the final
// approve or reject step.
//
// Each stage is a method on Pipeline so callers (the workflow manager, the
// CLI, tests) can drive stages individually or call Process for the whole
// flow. Stage outputs are moved between the configured working directories
// with rename semantics; the validation-stage file name embeds the job id and
// video id around status.ProcessingMarker so CleanupOrphanedFiles can tell
// abandoned work apart from the file system alone.
//
// A clip that fails or is cancelled leaves no status record and remains
// eligible for another attempt. A clip already present in the status store is
// answered from the store without transcoding or detection.
package pipeline
