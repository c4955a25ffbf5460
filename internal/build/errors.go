package build

import (
	"errors"
	"fmt"

	"github.com/nextos/nextiso/internal/runtime"
)

// Failure kinds, one per stage. A [*StageError] matches the kind of the
// stage that failed.
var (
	ErrDependencyMissing   = runtime.ErrDependencyMissing
	ErrAsset               = errors.New("base image unavailable")
	ErrEnvironmentStart    = runtime.ErrEnvironmentStart
	ErrEnvironmentNotReady = runtime.ErrEnvironmentNotReady
	ErrConfiguration       = errors.New("system configuration failed")
	ErrPostInstall         = errors.New("post-install failed")
	ErrAssembly            = errors.New("image assembly failed")
	ErrTeardown            = errors.New("teardown failed")
)

var (
	ErrBuildAlreadyInProgress = errors.New("a build is already in progress")
	ErrStageTimeout           = errors.New("stage timed out")
	ErrToolchain              = errors.New("invalid toolchain")
	ErrArtifact               = errors.New("invalid image artifact")
)

// Reports the stage a build stopped at.
//
// errors.Is matches both the stage's failure kind and anything in the
// underlying cause, so callers can test for [ErrAssembly] as well as for
// [process.ErrCommandFailed] on the same error.
//
// A teardown failure after the stage failed is kept in Teardown. It is
// appended to the message and reachable through errors.Is, but never
// replaces the stage or its kind.
type StageError struct {
	Stage    string // Name of the failed stage.
	Kind     error  // Failure kind of the stage.
	Err      error  // Underlying cause.
	Teardown error  // Teardown failure that followed, if any.
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Stage, e.Err)
	if e.Teardown != nil {
		msg += fmt.Sprintf("; teardown also failed: %v", e.Teardown)
	}
	return msg
}

func (e *StageError) Unwrap() []error {
	if e.Teardown != nil {
		return []error{e.Kind, e.Err, e.Teardown}
	}
	return []error{e.Kind, e.Err}
}
