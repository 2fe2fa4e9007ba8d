package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrWaitTimeout    = errors.New("timed out waiting for element")
	ErrNotFound       = errors.New("element not found")
	ErrStale          = errors.New("element is no longer attached to the document")
	ErrSessionClosed  = errors.New("rendering session is closed")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrEmptyText      = errors.New("review text is empty")
	ErrNoCategories   = errors.New("no category URLs configured")
	ErrUnsupportedOp  = errors.New("operation not supported by this session")
	ErrProductMissing = errors.New("product not found after insert")
)

// NavigationError wraps a failed page load.
type NavigationError struct {
	URL     string
	Attempt int
	Err     error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s (attempt %d): %v", e.URL, e.Attempt, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ExtractionError reports a card field that was present but could not be read.
type ExtractionError struct {
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StorageError wraps errors raised by a persistence backend. These are
// fatal to a crawl run.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s %s): %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort a crawl run rather than be
// absorbed at the product or partition boundary.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var se *StorageError
	if errors.As(err, &se) {
		return true
	}
	var ce *ConfigError
	return errors.As(err, &ce)
}

// PipelineError wraps errors that occur in the review-item pipeline.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
