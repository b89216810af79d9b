package models

import (
	"errors"
	"fmt"
)

var (
	// ErrClassificationRejected means the vision gate judged the image not to
	// show a disaster. It is an expected outcome, not a fault.
	ErrClassificationRejected = errors.New("image does not depict a disaster scenario")

	// ErrNotFound means no report or user matched the identifier.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the principal lacks the role the operation requires.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthenticated means credentials were required but missing or invalid.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrStoreUnavailable means the database could not be reached. Callers
	// should present it as "try again later".
	ErrStoreUnavailable = errors.New("storage temporarily unavailable")

	// ErrConflict means a unique key already exists.
	ErrConflict = errors.New("already exists")
)

// ValidationError names the input field that was missing or malformed.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UpstreamError wraps a failure of an external service (vision model,
// geocoder, object storage). It is distinct from a negative answer.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream)
}
