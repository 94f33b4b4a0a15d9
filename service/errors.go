package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrIDRequired = errors.New("id is required")
	ErrNotFound   = errors.New("document not found")
	ErrReaderNil  = errors.New("reader is nil")

	// ErrCouldNotRetrieve is the only error callers see for download or
	// decrypt problems; the precise cause is logged internally and never
	// leaks paths or key material.
	ErrCouldNotRetrieve = errors.New("could not retrieve document")
)

// ValidationError reports a caller-correctable problem with an upload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitError reports that ingestion was rejected by admission control.
// The request can be retried at RetryAt.
type RateLimitError struct {
	Attempts   int
	MaxAllowed int
	RetryAt    time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%d/%d), retry after %s",
		e.Attempts, e.MaxAllowed, e.RetryAt.Format(time.RFC3339))
}
