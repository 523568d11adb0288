package models

import "fmt"

// GenerationError is any failure of the text-generation provider:
// unreachable endpoint, malformed or empty response, quota or rate
// limit. The underlying cause is logged but never distinguished in
// control flow; callers treat every GenerationError the same way.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// ConfigurationError reports invalid options at run start. It is
// fatal immediately: no episode is started.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}
