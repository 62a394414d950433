package enrich

import "fmt"

// Custom errors

// ValidationError represents a malformed page or summary request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UpstreamUnavailableError indicates a required upstream could not be
// reached, so the whole request fails rather than degrading.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type UpstreamUnavailableError struct {
	Upstream string
	Cause    error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Upstream, e.Cause)
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Cause
}
