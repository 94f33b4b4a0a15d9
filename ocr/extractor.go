// Package ocr defines the text-extraction boundary consulted during
// ingestion. Extraction sees the plaintext stream before encryption; its
// results only feed form auto-fill, so failures are always non-fatal to the
// upload.
package ocr

import (
	"context"
	"io"
)

// Result is the best-effort output of one extraction.
type Result struct {
	// Fields holds structured key/value pairs recognized in the document.
	Fields map[string]string
	// Text is the raw extracted text.
	Text string
	// Confidence is in [0, 1]; 0 means nothing usable was recognized.
	Confidence float64
}

// Extractor reads a plaintext document stream and returns recognized fields.
type Extractor interface {
	// Extract returns best-effort results; an error disables auto-fill for
	// this upload and nothing else.
	Extract(ctx context.Context, r io.Reader, contentType string) (*Result, error)
}
