// Package logging builds the slog loggers subguard writes through.
//
// Two handlers are available: a console format that lifts the component,
// clip and stage into a header line, and a compact JSON format for log
// shipping. Context helpers copy clip, job, stage and request identifiers
// from a context onto a logger so stage code never threads them by hand.
package logging
