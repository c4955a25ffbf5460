package process

import (
	"io"

	"al.essio.dev/pkg/shellescape"
)

// Identifies the output stream a line was read from.
type Stream int

const (
	Stdout Stream = iota + 1
	Stderr
)

// Returns "stdout" or "stderr".
func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// Receives output lines as they arrive.
//
// Lines from one stream arrive in order. Calls are serialised, so a handler
// never runs concurrently with itself for the same command.
type LineHandler func(stream Stream, line string)

// An external command described as an argument vector.
//
// Commands are never passed through a shell by the runner; callers that
// need a shell (for example to run a generated script inside a container)
// invoke it explicitly as one of the arguments.
type Command struct {
	Path  string    // Executable name (resolved through PATH) or path.
	Args  []string  // Arguments, excluding the executable.
	Dir   string    // Working directory. Empty uses the current directory.
	Env   []string  // Extra KEY=VALUE entries appended to the inherited environment.
	Stdin io.Reader // Standard input. Nil connects the null device.
}

// Creates a command from an executable and its arguments.
func New(path string, args ...string) Command {
	return Command{Path: path, Args: args}
}

// Returns the full argument vector, executable first.
func (c Command) Argv() []string {
	return append([]string{c.Path}, c.Args...)
}

// Returns the command as a copy-pasteable, shell-quoted string.
func (c Command) String() string {
	return shellescape.QuoteCommand(c.Argv())
}

// Captured output of a finished command.
type Result struct {
	ExitCode int    // Exit code of the process.
	Stdout   string // Standard output with surrounding whitespace trimmed.
	Stderr   string // Standard error, verbatim.
}
