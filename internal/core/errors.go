package core

import (
	"errors"
	"fmt"
)

// ErrTokenExpired is the uniform signal for a 401 from the catalog service,
// surfaced identically regardless of which endpoint produced it.
var ErrTokenExpired = errors.New("token_expired")

// ValidationError reports malformed input rejected before any network call.
// No state mutation occurs when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RemoteError is a non-auth rejection from the catalog service, carrying a
// best-effort human-readable message.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("catalog service returned status %d", e.Status)
	}
	return fmt.Sprintf("catalog service returned status %d: %s", e.Status, e.Message)
}

// PartialBatchError reports a multi-batch write that failed mid-sequence.
// Batches that already succeeded are not undone; the playlist retains the
// partial edit.
type PartialBatchError struct {
	Completed int
	Total     int
	Err       error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("batch %d of %d failed: %v", e.Completed+1, e.Total, e.Err)
}

func (e *PartialBatchError) Unwrap() error {
	return e.Err
}
