package runtime

import (
	"errors"
	"fmt"
)

var (
	ErrRuntime             = errors.New("runtime error")
	ErrDependencyMissing   = errors.New("container engine unavailable")
	ErrEnvironmentStart    = errors.New("build environment failed to start")
	ErrEnvironmentNotReady = errors.New("build environment is not running")
	ErrInvalidTransition   = errors.New("invalid environment state transition")
	ErrUnknownEngine       = errors.New("unknown container engine")
)

// Why an engine is unavailable.
type Reason string

const (
	NotInstalled Reason = "not-installed" // The engine's client or socket is missing.
	Unreachable  Reason = "unreachable"   // The client exists but the daemon does not answer.
)

// Returned when the container engine cannot be used.
//
// Matches [ErrDependencyMissing]. The message tells the user what to do.
type DependencyMissing struct {
	Engine string // Engine name.
	Reason Reason // Installed or not.
	Detail string // Output of the failed probe, if any.
}

func (e *DependencyMissing) Error() string {
	var msg string
	switch e.Reason {
	case NotInstalled:
		msg = fmt.Sprintf("%s is not installed; install it and make sure it is on your PATH", e.Engine)
	case Unreachable:
		msg = fmt.Sprintf("%s is installed but its daemon is not reachable; start the %s service and check that your user may access it", e.Engine, e.Engine)
	default:
		msg = fmt.Sprintf("%s is unavailable", e.Engine)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Matches [ErrDependencyMissing].
func (e *DependencyMissing) Is(target error) bool {
	return target == ErrDependencyMissing
}
