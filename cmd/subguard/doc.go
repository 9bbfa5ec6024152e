// Package main hosts the subguard CLI.
//
// The Cobra command tree wires configuration, logging, the status store and
// the pipeline together for one-shot use: judging a single clip, running a
// directory through the worker pool, inspecting and forgetting verdicts,
// sweeping orphaned files and checking external tools. Domain behavior lives
// in the internal packages; commands here only assemble and report.
package main
