package distro

import (
	"errors"
	"strings"
)

var (
	ErrInvalidConfiguration = errors.New("invalid build configuration")
	ErrSchema               = errors.New("build configuration does not match schema")
)

// Lists every problem found in a configuration.
//
// Matches [ErrInvalidConfiguration].
type ValidationError struct {
	Problems []string // One human-readable line per problem, prefixed with the field path.
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid build configuration: " + e.Problems[0]
	}
	return "invalid build configuration:\n  - " + strings.Join(e.Problems, "\n  - ")
}

// Matches [ErrInvalidConfiguration].
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}
