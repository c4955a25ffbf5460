package asset

import (
	"errors"
	"fmt"
)

var (
	ErrFetch            = errors.New("asset fetch failed")
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	ErrNotRegular       = errors.New("asset path is not a regular file")
)

// Returned when an asset could not be made present locally.
//
// Matches [ErrFetch] and unwraps to the underlying network, HTTP status, or
// filesystem error.
type FetchError struct {
	URL   string // Remote location that was requested.
	Cause error  // Underlying failure.
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Matches [ErrFetch].
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}
