package cli

import (
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/nextos/nextiso/internal"
	"github.com/nextos/nextiso/internal/asset"
	"github.com/nextos/nextiso/internal/build"
	"github.com/nextos/nextiso/internal/process"
	"github.com/nextos/nextiso/internal/runtime"
)

// Flags selecting the container engine.
type EngineFlags struct {
	Engine  string `enum:"docker,podman,containerd" default:"docker" env:"NEXTISO_ENGINE" help:"Container engine (${enum})."`
	Address string `env:"NEXTISO_CONTAINERD_ADDRESS" help:"containerd socket address, for the containerd engine." placeholder:"PATH"`
}

// Opens the selected engine. The returned function releases it.
func (f EngineFlags) open() (runtime.Environment, func(), error) {
	env, err := runtime.Open(f.Engine, process.NewExec(0), f.Address)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if c, ok := env.(io.Closer); ok {
			c.Close()
		}
	}
	return env, release, nil
}

// Flags shared by every command that runs builds.
type BuilderFlags struct {
	EngineFlags `embed:""`

	Image        string        `default:"${image}" env:"NEXTISO_IMAGE" help:"Container image for the build environment."`
	Name         string        `default:"${builder}" env:"NEXTISO_BUILDER_NAME" help:"Name of the build environment."`
	Output       string        `short:"o" type:"path" env:"NEXTISO_OUTPUT" help:"Directory finished images are written to." placeholder:"DIR"`
	BaseImageURL string        `name:"base-image-url" env:"NEXTISO_BASE_IMAGE_URL" help:"Where the Arch Linux installation image is downloaded from."`
	StageTimeout time.Duration `env:"NEXTISO_STAGE_TIMEOUT" help:"Limit for each build stage, for example 45m. Zero means no limit."`
}

// Returns builder options for these flags.
func (f BuilderFlags) options() build.Options {
	opts := build.DefaultOptions()
	if f.Image != "" {
		opts.Image = f.Image
	}
	if f.Name != "" {
		opts.Name = f.Name
	}
	if f.Output != "" {
		opts.Output = f.Output
	}
	if f.BaseImageURL != "" {
		opts.BaseImageURL = f.BaseImageURL
	}
	opts.StageTimeout = f.StageTimeout
	opts.Meter = otel.Meter(internal.Name)
	opts.Logger = slog.Default()
	return opts
}

// Opens the engine and creates a builder. The returned function releases
// the engine.
func (f BuilderFlags) builder() (*build.Builder, func(), error) {
	env, release, err := f.open()
	if err != nil {
		return nil, nil, err
	}

	b, err := build.New(env, asset.New(), f.options())
	if err != nil {
		release()
		return nil, nil, err
	}
	return b, release, nil
}
