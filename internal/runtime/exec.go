package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/nextos/nextiso/internal/process"
)

// Sequence counter for generating unique exec process identifiers.
var execSeq uint64

// Returns a unique exec process identifier.
func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// Runs argv directly inside the container's running task.
//
// Output is captured and, line by line, delivered to handler while the
// process runs. A non-zero exit is returned as [*process.CommandFailed].
func execArgs(ctx context.Context, client *containerd.Client, id string, argv []string, handler process.LineHandler) (*process.Result, error) {
	pspec, err := buildProcessSpec(ctx, client, id, argv)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	emit := process.Serialize(handler)
	outLines := process.NewLineWriter(process.Stdout, emit)
	errLines := process.NewLineWriter(process.Stderr, emit)

	var stdout, stderr bytes.Buffer
	exitCode, err := execProcess(ctx, client, id, pspec,
		io.MultiWriter(&stdout, outLines),
		io.MultiWriter(&stderr, errLines),
	)
	outLines.Flush()
	errLines.Flush()
	if err != nil {
		return nil, err
	}

	res := &process.Result{
		ExitCode: exitCode,
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   stderr.String(),
	}
	if exitCode != 0 {
		return res, &process.CommandFailed{
			ExitCode: exitCode,
			Command:  process.New(argv[0], argv[1:]...).String(),
			Stderr:   res.Stderr,
		}
	}
	return res, nil
}

// Builds an OCI process spec for running a command inside the container.
//
// The base values are copied from the container's own OCI spec so that the
// process inherits its environment and working directory.
func buildProcessSpec(ctx context.Context, client *containerd.Client, id string, args []string) (*specs.Process, error) {
	ctr, err := client.LoadContainer(ctx, id)
	if err != nil {
		return nil, err
	}

	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, err
	}

	pspec := *spec.Process
	pspec.Terminal = false
	pspec.Args = args
	return &pspec, nil
}

// Starts a process inside the container's running task, waits for it to exit,
// and returns the exit code.
//
// The process is attached to the task as an additional exec, not as the
// primary process. This requires the task to already be running (started
// during container creation). A non-zero exit code is not treated as an
// error; the caller decides how to handle it.
func execProcess(ctx context.Context, client *containerd.Client, id string, pspec *specs.Process, stdout, stderr io.Writer) (int, error) {
	task, err := loadTask(ctx, client, id)
	if err != nil {
		return 0, err
	}

	proc, err := task.Exec(ctx, nextExecID(), pspec, cio.NewCreator(
		cio.WithStreams(nil, stdout, stderr),
	))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return awaitProcess(ctx, proc)
}

// Loads the container's running task.
func loadTask(ctx context.Context, client *containerd.Client, id string) (containerd.Task, error) {
	ctr, err := client.LoadContainer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvironmentNotReady, err)
	}

	return task, nil
}

// Waits for an exec process to exit and returns the exit code.
//
// The process is always deleted before returning, which also waits for its
// output to be copied out.
func awaitProcess(ctx context.Context, proc containerd.Process) (int, error) {
	statusC, err := proc.Wait(ctx)
	if err != nil {
		proc.Delete(context.WithoutCancel(ctx))
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := proc.Start(ctx); err != nil {
		proc.Delete(context.WithoutCancel(ctx))
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	var exitStatus containerd.ExitStatus
	select {
	case exitStatus = <-statusC:
	case <-ctx.Done():
		cleanup := context.WithoutCancel(ctx)
		proc.Kill(cleanup, syscall.SIGKILL)
		<-statusC
		proc.Delete(cleanup, containerd.WithProcessKill)
		return 0, ctx.Err()
	}
	proc.Delete(context.WithoutCancel(ctx))

	code, _, err := exitStatus.Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return int(code), nil
}
