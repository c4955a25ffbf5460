package build

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nextos/nextiso/internal/process"
)

func TestStagesTable(t *testing.T) {
	got := Stages()

	names := make([]string, len(got))
	for i, s := range got {
		names[i] = s.Name
		assert.Equal(t, i+1, s.Ordinal, s.Name)
		assert.NotNil(t, s.Kind, s.Name)
	}
	assert.Equal(t, []string{
		StagePreflight, StageAssetAcquisition, StageEnvironmentSetup,
		StageConfiguration, StagePostInstall, StageImageAssembly, StageTeardown,
	}, names)

	for _, s := range got {
		if s.Name == StageAssetAcquisition {
			assert.Equal(t, SkipIfSatisfied, s.Policy)
		} else {
			assert.Equal(t, AlwaysRun, s.Policy, s.Name)
		}
	}
}

func TestStagesReturnsCopy(t *testing.T) {
	s := Stages()
	s[0].Name = "changed"
	assert.Equal(t, StagePreflight, Stages()[0].Name)
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "always-run", AlwaysRun.String())
	assert.Equal(t, "skip-if-satisfied", SkipIfSatisfied.String())
}

func TestStageErrorMatchesKindAndCause(t *testing.T) {
	cause := &process.CommandFailed{ExitCode: 4, Command: "mkarchiso", Stderr: "out of space\n"}
	var err error = &StageError{Stage: StageImageAssembly, Kind: ErrAssembly, Err: fmt.Errorf("wrapped: %w", cause)}

	assert.ErrorIs(t, err, ErrAssembly)
	assert.ErrorIs(t, err, process.ErrCommandFailed)
	assert.False(t, errors.Is(err, ErrConfiguration))

	var failed *process.CommandFailed
	assert.True(t, errors.As(err, &failed))
	assert.Equal(t, 4, failed.ExitCode)
	assert.Contains(t, err.Error(), "image-assembly: wrapped:")
	assert.Contains(t, err.Error(), "out of space")
}
