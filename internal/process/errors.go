package process

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCommandFailed = errors.New("command failed")
	ErrTimeout       = errors.New("command timed out")
)

// Returned when a command exits with a non-zero code.
//
// A non-zero exit is an expected outcome reported through this error, not a
// crash. Stderr holds the complete captured standard error so that callers
// can surface the tool's own explanation to the user.
type CommandFailed struct {
	ExitCode int    // Exit code of the process.
	Command  string // Shell-quoted command line.
	Stderr   string // Captured standard error.
}

func (e *CommandFailed) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Matches [ErrCommandFailed].
func (e *CommandFailed) Is(target error) bool {
	return target == ErrCommandFailed
}
