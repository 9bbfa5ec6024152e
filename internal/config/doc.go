// Package config loads, normalizes, and validates subguard configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the SUBGUARD_CONFIG environment
// fallback. The Config type centralizes every knob the pipeline, the detector
// engines, and the CLI need, so working directories are resolved and checked
// in one pass before anything is constructed.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
