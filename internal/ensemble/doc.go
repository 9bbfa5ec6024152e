// Package ensemble combines verdicts from independent detector engines.
//
// Engines are registered with a fixed name and weight. The Voter fans out to
// every registered engine under a bounded worker limit and a per-engine
// timeout, keeps failed engines out of the vote set, and combines the
// surviving votes with a weighted, majority, or unanimous strategy. Every
// result carries an uncertainty estimate and, when the vote is split between
// confident engines, a conflict analysis. Zero surviving votes is the only
// ensemble-level failure.
package ensemble
