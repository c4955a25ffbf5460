package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/nextos/nextiso/internal/process"
)

// Lifecycle state of a build environment.
type State string

const (
	StateAbsent  State = "absent"  // Never created, or unknown to the engine.
	StateCreated State = "created" // Exists but its long-running process has not started.
	StateRunning State = "running" // Ready for Exec.
	StateStopped State = "stopped" // Exists but is no longer running.
	StateRemoved State = "removed" // Destroyed by this process.
)

// A host path made visible inside the environment.
type Mount struct {
	Source      string // Absolute host path.
	Destination string // Absolute path inside the environment.
	ReadOnly    bool
}

// What to create.
type Spec struct {
	Name       string   // Environment name. Any existing environment with this name is replaced.
	Image      string   // Image reference, for example "archlinux:latest".
	Mounts     []Mount  // Bind mounts.
	Env        []string // KEY=VALUE entries for every process in the environment.
	Privileged bool     // Grants device and mount access, needed for loop devices.
}

// Version details reported by a reachable engine.
type EngineInfo struct {
	Engine  string // Engine name, for example "docker".
	Client  string // Client or library version.
	Server  string // Daemon version.
	Address string // Endpoint, when the engine has one.
}

// An isolated, long-lived execution environment backed by a container.
//
// Implementations track each environment through the states absent,
// created, running, stopped and removed. Exec is only valid while running.
// Destroy stops and removes the environment and is safe to call on an
// environment that no longer exists.
type Environment interface {

	// Checks that the engine is installed and reachable.
	//
	// Returns a [*DependencyMissing] when it is not.
	Check(ctx context.Context) (EngineInfo, error)

	// Force-removes any environment called name. A missing one is not an error.
	Reset(ctx context.Context, name string) error

	// Creates and starts an environment running a no-op foreground process.
	//
	// Fails with [ErrEnvironmentStart] unless the environment ends up running.
	Create(ctx context.Context, spec Spec) error

	// Runs argv inside the environment, streaming output lines to handler.
	//
	// Fails with [ErrEnvironmentNotReady] unless the environment is running.
	// A non-zero exit is reported as [*process.CommandFailed].
	Exec(ctx context.Context, name string, argv []string, handler process.LineHandler) (*process.Result, error)

	// Returns the current state of the environment.
	Status(ctx context.Context, name string) (State, error)

	// Stops and removes the environment.
	Destroy(ctx context.Context, name string) error
}

// Allowed lifecycle transitions.
var transitions = map[State][]State{
	StateAbsent:  {StateCreated},
	StateCreated: {StateRunning, StateStopped, StateRemoved},
	StateRunning: {StateStopped, StateRemoved},
	StateStopped: {StateRunning, StateRemoved},
	StateRemoved: {StateCreated},
}

// Records the lifecycle state of environments by name.
//
// Shared by every backend so that the rules for which operation is valid in
// which state live in one place. The zero value is ready to use.
type Tracker struct {
	mu     sync.Mutex
	states map[string]State
}

// Returns the recorded state of name.
func (t *Tracker) State(name string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.states[name]; ok {
		return s
	}
	return StateAbsent
}

// Moves name to state to, failing with [ErrInvalidTransition] when the
// lifecycle does not allow it. Moving to the current state is a no-op.
func (t *Tracker) Transition(name string, to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := StateAbsent
	if s, ok := t.states[name]; ok {
		from = s
	}
	if from == to {
		return nil
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			t.set(name, to)
			return nil
		}
	}
	return fmt.Errorf("%w: %s from %s to %s", ErrInvalidTransition, name, from, to)
}

// Records an observed state without checking the lifecycle.
//
// Used when the engine reports the truth, for example after a forced
// removal or when querying an environment this process did not create.
func (t *Tracker) Observe(name string, s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set(name, s)
}

// Fails with [ErrEnvironmentNotReady] unless name is running.
func (t *Tracker) RequireRunning(name string) error {
	if s := t.State(name); s != StateRunning {
		return fmt.Errorf("%w: %s is %s", ErrEnvironmentNotReady, name, s)
	}
	return nil
}

func (t *Tracker) set(name string, s State) {
	if t.states == nil {
		t.states = make(map[string]State)
	}
	t.states[name] = s
}
