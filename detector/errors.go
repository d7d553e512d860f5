package detector

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when Detect is called before Initialize,
// or after Cleanup. This is a programming error on the caller's side.
var ErrNotInitialized = errors.New("detector not initialized")

// ConfigError reports an invalid configuration value at Initialize time.
// It is fatal to the detector instance.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid detector config: %s %s", e.Field, e.Reason)
}

// DetectionError wraps an unexpected failure while scoring a sample. The
// caller decides whether to skip the sample or abort.
type DetectionError struct {
	DetectorID string
	Err        error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection failed in %s: %v", e.DetectorID, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}
