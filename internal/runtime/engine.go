package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/nextos/nextiso/internal/process"
)

// Container engines driven through their command-line client.
const (
	Docker = "docker"
	Podman = "podman"
)

// Template printing the daemon version, per engine.
var serverVersionFormat = map[string]string{
	Docker: "{{.ServerVersion}}",
	Podman: "{{.Version.Version}}",
}

// An [Environment] backed by the docker or podman command-line client.
//
// Every engine call goes through a [process.Runner] as an argument vector.
type Engine struct {
	binary  string
	runner  process.Runner
	tracker Tracker
}

// Creates an environment driven by binary ("docker" or "podman").
func NewEngine(binary string, runner process.Runner) (*Engine, error) {
	if _, ok := serverVersionFormat[binary]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, binary)
	}
	return &Engine{binary: binary, runner: runner}, nil
}

// Returns the engine binary name.
func (e *Engine) Name() string {
	return e.binary
}

// Runs "<engine> --version", then asks the daemon for its version.
func (e *Engine) Check(ctx context.Context) (EngineInfo, error) {
	info := EngineInfo{Engine: e.binary}

	res, err := e.run(ctx, nil, "--version")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return info, &DependencyMissing{Engine: e.binary, Reason: NotInstalled}
		}
		return info, &DependencyMissing{Engine: e.binary, Reason: NotInstalled, Detail: detail(err)}
	}
	info.Client = res.Stdout

	res, err = e.run(ctx, nil, "info", "--format", serverVersionFormat[e.binary])
	if err != nil {
		return info, &DependencyMissing{Engine: e.binary, Reason: Unreachable, Detail: detail(err)}
	}
	info.Server = res.Stdout

	slog.Debug("container engine available", "engine", e.binary, "client", info.Client, "server", info.Server)
	return info, nil
}

// Runs "<engine> rm -f <name>".
func (e *Engine) Reset(ctx context.Context, name string) error {
	if _, err := e.run(ctx, nil, "rm", "-f", name); err != nil && !isNoSuchContainer(err) {
		return fmt.Errorf("%w: failed to remove %s: %w", ErrRuntime, name, err)
	}
	e.tracker.Observe(name, StateRemoved)
	return nil
}

// Runs the environment detached with "sleep infinity" as its foreground
// process, then confirms that it is running.
func (e *Engine) Create(ctx context.Context, spec Spec) error {
	if err := e.tracker.Transition(spec.Name, StateCreated); err != nil {
		return fmt.Errorf("%w: %w", ErrEnvironmentStart, err)
	}

	if _, err := e.run(ctx, nil, runArgs(spec)...); err != nil {
		e.tracker.Observe(spec.Name, StateAbsent)
		return fmt.Errorf("%w: %w", ErrEnvironmentStart, err)
	}

	state, err := e.Status(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEnvironmentStart, err)
	}
	if state != StateRunning {
		return fmt.Errorf("%w: %s is %s after start", ErrEnvironmentStart, spec.Name, state)
	}

	slog.Debug("environment started", "engine", e.binary, "name", spec.Name, "image", spec.Image)
	return nil
}

// Builds the "run" arguments for spec.
func runArgs(spec Spec) []string {
	args := []string{"run", "-d", "--name", spec.Name}
	if spec.Privileged {
		args = append(args, "--privileged")
	}
	for _, m := range spec.Mounts {
		v := m.Source + ":" + m.Destination
		if m.ReadOnly {
			v += ":ro"
		}
		args = append(args, "-v", v)
	}
	for _, kv := range spec.Env {
		args = append(args, "-e", kv)
	}
	return append(args, spec.Image, "sleep", "infinity")
}

// Runs "<engine> exec <name> argv...".
func (e *Engine) Exec(ctx context.Context, name string, argv []string, handler process.LineHandler) (*process.Result, error) {
	if err := e.tracker.RequireRunning(name); err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrRuntime)
	}

	args := append([]string{"exec", name}, argv...)
	return e.run(ctx, handler, args...)
}

// Inspects the environment and records what the engine reports.
func (e *Engine) Status(ctx context.Context, name string) (State, error) {
	res, err := e.run(ctx, nil, "inspect", "-f", "{{.State.Status}}", name)
	if err != nil {
		if isNoSuchContainer(err) {
			if e.tracker.State(name) == StateRemoved {
				return StateRemoved, nil
			}
			e.tracker.Observe(name, StateAbsent)
			return StateAbsent, nil
		}
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	state := engineState(res.Stdout)
	e.tracker.Observe(name, state)
	return state, nil
}

// Maps a docker or podman container status to a lifecycle state.
func engineState(status string) State {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "running":
		return StateRunning
	case "created", "configured", "initialized":
		return StateCreated
	default:
		return StateStopped
	}
}

// Runs "<engine> stop" and then "<engine> rm", reporting both failures.
func (e *Engine) Destroy(ctx context.Context, name string) error {
	var errs []error

	if _, err := e.run(ctx, nil, "stop", name); err != nil && !isNoSuchContainer(err) {
		errs = append(errs, fmt.Errorf("failed to stop %s: %w", name, err))
	} else {
		e.tracker.Observe(name, StateStopped)
	}

	if _, err := e.run(ctx, nil, "rm", "-f", name); err != nil && !isNoSuchContainer(err) {
		errs = append(errs, fmt.Errorf("failed to remove %s: %w", name, err))
	} else {
		e.tracker.Observe(name, StateRemoved)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	slog.Debug("environment destroyed", "engine", e.binary, "name", name)
	return nil
}

func (e *Engine) run(ctx context.Context, handler process.LineHandler, args ...string) (*process.Result, error) {
	return e.runner.Run(ctx, process.New(e.binary, args...), handler)
}

// Reports whether err says the container does not exist.
func isNoSuchContainer(err error) bool {
	var failed *process.CommandFailed
	if !errors.As(err, &failed) {
		return false
	}
	stderr := strings.ToLower(failed.Stderr)
	return strings.Contains(stderr, "no such container") || strings.Contains(stderr, "no such object")
}

// Returns the most useful one-line description of a probe failure.
func detail(err error) string {
	var failed *process.CommandFailed
	if errors.As(err, &failed) {
		if s := strings.TrimSpace(failed.Stderr); s != "" {
			if first, _, ok := strings.Cut(s, "\n"); ok {
				return first
			}
			return s
		}
	}
	return err.Error()
}
