// Package textutil provides text processing utilities for OCR text comparison
// and identifier sanitization.
//
// The primary use cases are:
//   - Normalizing detected text (Unicode NFC, trimmed) before comparison
//   - Computing rune-level edit distance and the derived similarity score
//   - Sanitizing file stems into pipeline-safe video identifiers
package textutil
