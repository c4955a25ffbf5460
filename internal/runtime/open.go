package runtime

import (
	"fmt"

	"github.com/nextos/nextiso/internal/process"
)

// Engine name selecting the containerd backend.
const ContainerdEngine = "containerd"

// Returns the names [Open] accepts.
func Engines() []string {
	return []string{Docker, Podman, ContainerdEngine}
}

// Opens the environment backend called engine.
//
// The docker and podman backends run their client through runner. The
// containerd backend connects to address, or [DefaultAddress] when empty.
// Callers should close the result if it implements io.Closer.
func Open(engine string, runner process.Runner, address string) (Environment, error) {
	switch engine {
	case Docker, Podman:
		return NewEngine(engine, runner)
	case ContainerdEngine:
		return NewContainerd(address, DefaultNamespace), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}
