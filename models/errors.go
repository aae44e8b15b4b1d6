package models

import (
	"fmt"
	"time"
)

// ValidationError is the only failure a search surfaces to its caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid criteria: %s: %s", e.Field, e.Reason)
}

// SourceFetchError covers network failures and non-success statuses.
type SourceFetchError struct {
	Source     string
	URL        string
	StatusCode int
	Err        error
}

func (e *SourceFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: fetch %s: status %d: %v", e.Source, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: fetch %s: %v", e.Source, e.URL, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}

type SourceTimeoutError struct {
	Source  string
	Timeout time.Duration
}

func (e *SourceTimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Source, e.Timeout)
}
