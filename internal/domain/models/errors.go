package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSourceUnavailable is returned by a source when it cannot produce data.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrRateLimited is a local admission denial; callers skip the source.
	ErrRateLimited = errors.New("rate limited")
	// ErrValidationFailed marks data rejected by the validator.
	ErrValidationFailed = errors.New("validation failed")
	// ErrAllSourcesExhausted means no source produced valid data this cycle.
	ErrAllSourcesExhausted = errors.New("all sources exhausted")
	// ErrNotAvailable means no record has been produced for a symbol yet.
	ErrNotAvailable = errors.New("not available")
)

// ValidationError lists every rule a value violated.
type ValidationError struct {
	Subject    string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidationFailed, e.Subject, strings.Join(e.Violations, "; "))
}

// Is makes errors.Is(err, ErrValidationFailed) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Unavailable wraps cause as an ErrSourceUnavailable for source.
func Unavailable(source string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", source, ErrSourceUnavailable)
	}
	return fmt.Errorf("%s: %w: %v", source, ErrSourceUnavailable, cause)
}
