package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Grace period between cancellation and forcibly closing the pipes.
const waitDelay = 5 * time.Second

// Runs external commands.
//
// Run blocks until the command exits. Output lines are delivered to handler
// (which may be nil) while the command runs. On a non-zero exit Run returns
// the captured result together with a [*CommandFailed] error.
type Runner interface {
	Run(ctx context.Context, cmd Command, handler LineHandler) (*Result, error)
}

// Runs commands as local child processes.
type Exec struct {
	Timeout time.Duration // Per-command limit. Zero means no limit beyond ctx.
	Logger  *slog.Logger  // Receives debug output. Nil uses [slog.Default].
}

// Creates a local runner with the given per-command timeout.
func NewExec(timeout time.Duration) *Exec {
	return &Exec{Timeout: timeout}
}

// Runs cmd and waits for it to finish.
//
// Errors are reported as follows:
//   - executable not found: wraps [exec.ErrNotFound]
//   - deadline reached: wraps [ErrTimeout]
//   - parent context cancelled: wraps [context.Canceled]
//   - non-zero exit: [*CommandFailed] with the complete stderr
func (e *Exec) Run(ctx context.Context, c Command, handler LineHandler) (*Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	logger := e.logger()
	display := c.String()
	logger.Debug("running command", "command", display, "dir", c.Dir)

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	cmd.WaitDelay = waitDelay
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	emit := Serialize(handler)
	outLines := NewLineWriter(Stdout, emit)
	errLines := NewLineWriter(Stderr, emit)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = io.MultiWriter(&outBuf, outLines)
	cmd.Stderr = io.MultiWriter(&errBuf, errLines)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", display, err)
	}

	waitErr := cmd.Wait()
	outLines.Flush()
	errLines.Flush()
	logger.Debug("command finished", "command", display, "duration", time.Since(started).Round(time.Millisecond))

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w: %w", display, ErrTimeout, ctxErr)
		}
		return nil, fmt.Errorf("%s: %w", display, ctxErr)
	}

	res := &Result{
		Stdout: strings.TrimSpace(outBuf.String()),
		Stderr: errBuf.String(),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &CommandFailed{
				ExitCode: res.ExitCode,
				Command:  display,
				Stderr:   res.Stderr,
			}
		}
		return nil, fmt.Errorf("%s: %w", display, waitErr)
	}

	return res, nil
}

func (e *Exec) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
