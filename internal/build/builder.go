package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"
	"github.com/nrednav/cuid2"
	"github.com/opencontainers/go-digest"
	"go.opentelemetry.io/otel/metric"

	"github.com/nextos/nextiso/internal/asset"
	"github.com/nextos/nextiso/internal/distro"
	"github.com/nextos/nextiso/internal/installer"
	"github.com/nextos/nextiso/internal/paths"
	"github.com/nextos/nextiso/internal/process"
	"github.com/nextos/nextiso/internal/progress"
	"github.com/nextos/nextiso/internal/runtime"
)

const (

	// Default container image the build environment is created from.
	DefaultImage = "archlinux:latest"

	// Default name of the build environment.
	DefaultName = "nextos-builder"

	// Default image profile, as installed by the archiso package.
	DefaultProfile = "/usr/share/archiso/configs/releng"

	// Default volume label of the produced image.
	DefaultLabel = "NEXTISO"

	// Upper bound for teardown, which runs detached from the build context.
	teardownTimeout = 2 * time.Minute

	// Name of the staged post-install script.
	scriptFile = "postinstall.sh"
)

// Paths inside the build environment.
const (
	envBaseImage = "/nextiso/arch.iso"
	envStage     = "/nextiso/stage"
	envOutput    = "/nextiso/output"
	envWork      = "/var/tmp/nextiso-work"
)

// Build settings.
type Options struct {
	Image        string        // Container image for the build environment.
	Name         string        // Name of the build environment.
	BaseImage    string        // Local path of the cached base installation image.
	BaseImageURL string        // Where the base image is downloaded from.
	Work         string        // Host directory for per-build working state.
	Output       string        // Host directory finished images are moved into.
	StageTimeout time.Duration // Limit for each stage. Zero means no limit.
	Toolchain    Toolchain     // Commands run inside the environment.
	Profile      string        // Image profile passed to the assembler.
	Label        string        // Volume label of the produced image.
	Meter        metric.Meter  // Receives build metrics. Nil disables metrics.
	Logger       *slog.Logger  // Nil uses [slog.Default].
}

// Returns options using the default paths and the Arch Linux toolchain.
func DefaultOptions() Options {
	return Options{
		Image:        DefaultImage,
		Name:         DefaultName,
		BaseImage:    paths.BaseImage(),
		BaseImageURL: asset.BaseImageURL,
		Work:         paths.Work(),
		Output:       paths.Output(),
		Toolchain:    DefaultToolchain(),
		Profile:      DefaultProfile,
		Label:        DefaultLabel,
	}
}

// Makes sure a remote asset is present locally.
//
// [*asset.Fetcher] satisfies this interface.
type Fetcher interface {
	Ensure(ctx context.Context, localPath, remoteURL string, obs asset.Observer) (bool, error)
}

// Outcome of a successful build.
type Result struct {
	ID           string        // Build ID.
	ImagePath    string        // Absolute path of the produced image.
	ImageName    string        // File name of the produced image.
	ConfigDigest digest.Digest // Digest of the staged installer configuration.
	Duration     time.Duration // Wall time of the build.
}

// Runs builds against one environment, one at a time.
type Builder struct {
	env     runtime.Environment
	fetcher Fetcher
	opts    Options
	metrics *Metrics
	logger  *slog.Logger
	busy    atomic.Bool
	builds  atomic.Int64
	newID   func() string
}

// Creates a builder.
//
// Empty options fall back to [DefaultOptions]. Returns [ErrToolchain] when
// the toolchain is incomplete.
func New(env runtime.Environment, fetcher Fetcher, opts Options) (*Builder, error) {
	if env == nil {
		return nil, errors.New("build environment is required")
	}
	if fetcher == nil {
		fetcher = asset.New()
	}

	opts = withDefaults(opts)
	if err := opts.Toolchain.Validate(); err != nil {
		return nil, err
	}

	b := &Builder{
		env:     env,
		fetcher: fetcher,
		opts:    opts,
		logger:  opts.Logger,
		newID:   cuid2.Generate,
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	if opts.Meter != nil {
		m, err := NewMetrics(opts.Meter)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
		b.metrics = m
	}
	return b, nil
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Image == "" {
		opts.Image = def.Image
	}
	if opts.Name == "" {
		opts.Name = def.Name
	}
	if opts.BaseImage == "" {
		opts.BaseImage = def.BaseImage
	}
	if opts.BaseImageURL == "" {
		opts.BaseImageURL = def.BaseImageURL
	}
	if opts.Work == "" {
		opts.Work = def.Work
	}
	if opts.Output == "" {
		opts.Output = def.Output
	}
	if opts.Toolchain.Installer == nil && opts.Toolchain.PostInstall == nil && opts.Toolchain.Assemble == nil {
		opts.Toolchain = def.Toolchain
	}
	if opts.Profile == "" {
		opts.Profile = def.Profile
	}
	if opts.Label == "" {
		opts.Label = def.Label
	}
	return opts
}

// Returns the number of builds started so far, rejected ones excluded.
func (b *Builder) Builds() int64 {
	return b.builds.Load()
}

// Returns true while a build is running.
func (b *Builder) Busy() bool {
	return b.busy.Load()
}

// Builds an image from cfg, sending progress to sink.
//
// Stages run in order and the first failure aborts the rest. Once the
// environment stage has been entered the environment is torn down on every
// exit path, including cancellation of ctx. Exactly one terminal event is
// sent, always last. A failed build returns a [*StageError].
//
// Only one build runs at a time. A concurrent call fails immediately with
// [ErrBuildAlreadyInProgress] after sending its own failure event.
func (b *Builder) Run(ctx context.Context, cfg distro.BuildConfiguration, sink progress.Sink) (*Result, error) {
	if sink == nil {
		sink = progress.Discard
	}

	if !b.busy.CompareAndSwap(false, true) {
		sink.Send(progress.Failure(StagePreflight, ErrBuildAlreadyInProgress.Error()))
		b.metrics.RecordBuild(ctx, "rejected", 0)
		return nil, ErrBuildAlreadyInProgress
	}
	defer b.busy.Store(false)
	b.builds.Add(1)

	id := b.newID()
	r := &run{
		b:       b,
		id:      id,
		cfg:     cfg.Clone(),
		sink:    sink,
		logger:  b.logger.With("build", id),
		stage:   paths.Stage(b.opts.Work, id),
		scratch: filepath.Join(b.opts.Work, "output", id),
	}

	started := time.Now()
	res, err := r.execute(ctx)
	duration := time.Since(started)

	if err != nil {
		var se *StageError
		stage := StagePreflight
		if errors.As(err, &se) {
			stage = se.Stage
		}
		r.logger.Error("build failed", "stage", stage, "error", err, "duration", duration.Round(time.Millisecond))
		sink.Send(progress.Failure(stage, err.Error()))
		b.metrics.RecordBuild(ctx, "failed", duration)
		return nil, err
	}

	res.Duration = duration
	r.logger.Info("build finished", "image", res.ImagePath, "duration", duration.Round(time.Millisecond))
	sink.Send(progress.Success(res.ImagePath, res.ImageName))
	b.metrics.RecordBuild(ctx, "success", duration)
	return res, nil
}

// Runs a build in the background and returns its events.
//
// The channel is closed after the terminal event. The caller must drain it.
func (b *Builder) Stream(ctx context.Context, cfg distro.BuildConfiguration) <-chan progress.Event {
	ch := progress.NewChannel(64)
	go func() {
		defer ch.Close()
		b.Run(ctx, cfg, ch)
	}()
	return ch.Events()
}

// State of a single build.
type run struct {
	b       *Builder
	id      string
	cfg     distro.BuildConfiguration
	sink    progress.Sink
	logger  *slog.Logger
	stage   string // Host staging directory, mounted at envStage.
	scratch string // Host directory the assembler writes into, mounted at envOutput.
	entered bool   // Set once the environment stage starts.
	result  Result
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	r.result.ID = r.id

	var failure error
	for _, st := range stages {
		if st.Name == StageTeardown {
			break
		}
		if err := r.runStage(ctx, st); err != nil {
			failure = err
			break
		}
	}

	if r.entered {
		if err := r.teardown(ctx); err != nil {
			r.logger.Warn("teardown failed", "error", err)
			progress.NewReporter(r.sink, StageTeardown).Logf("teardown failed: %v", err)
			var se *StageError
			if errors.As(failure, &se) {
				se.Teardown = err
			}
		}
	}

	if failure != nil {
		return nil, failure
	}
	return &r.result, nil
}

// Runs one stage under the stage timeout and wraps its failure.
func (r *run) runStage(ctx context.Context, st Stage) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: st.Name, Kind: st.Kind, Err: err}
	}

	stageCtx := ctx
	timeout := r.b.opts.StageTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rep := progress.NewReporter(r.sink, st.Name)
	r.logger.Debug("stage started", "stage", st.Name, "ordinal", st.Ordinal, "policy", st.Policy)

	started := time.Now()
	err := r.stageFunc(st.Name)(stageCtx, rep)
	duration := time.Since(started)

	if err != nil && ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", ErrStageTimeout, timeout, err)
	}

	status := "success"
	if err != nil {
		status = "failed"
	}
	r.b.metrics.RecordStage(ctx, st.Name, status, duration)
	r.logger.Debug("stage finished", "stage", st.Name, "status", status, "duration", duration.Round(time.Millisecond))

	if err != nil {
		return &StageError{Stage: st.Name, Kind: st.Kind, Err: err}
	}
	return nil
}

func (r *run) stageFunc(name string) func(context.Context, *progress.Reporter) error {
	switch name {
	case StagePreflight:
		return r.preflight
	case StageAssetAcquisition:
		return r.acquireAsset
	case StageEnvironmentSetup:
		return r.setupEnvironment
	case StageConfiguration:
		return r.configure
	case StagePostInstall:
		return r.postInstall
	case StageImageAssembly:
		return r.assemble
	default:
		return func(context.Context, *progress.Reporter) error {
			return fmt.Errorf("unknown stage %q", name)
		}
	}
}

func (r *run) preflight(ctx context.Context, rep *progress.Reporter) error {
	info, err := r.b.env.Check(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("engine available", "engine", info.Engine, "server", info.Server)
	rep.Logf("using %s %s", info.Engine, info.Server)
	return nil
}

func (r *run) acquireAsset(ctx context.Context, rep *progress.Reporter) error {
	if info, err := os.Stat(r.b.opts.BaseImage); err == nil && info.Mode().IsRegular() {
		r.logger.Debug("base image cached", "path", r.b.opts.BaseImage)
		return nil
	}

	_, err := r.b.fetcher.Ensure(ctx, r.b.opts.BaseImage, r.b.opts.BaseImageURL, rep)
	return err
}

func (r *run) setupEnvironment(ctx context.Context, rep *progress.Reporter) error {
	r.entered = true

	for _, dir := range []string{r.stage, r.scratch} {
		if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	name := r.b.opts.Name
	if err := r.b.env.Reset(ctx, name); err != nil {
		return fmt.Errorf("failed to remove stale environment: %w", err)
	}

	spec := runtime.Spec{
		Name:  name,
		Image: r.b.opts.Image,
		Mounts: []runtime.Mount{
			{Source: r.b.opts.BaseImage, Destination: envBaseImage, ReadOnly: true},
			{Source: r.stage, Destination: envStage},
			{Source: r.scratch, Destination: envOutput},
		},
		Privileged: true,
	}
	rep.Logf("starting %s from %s", name, spec.Image)
	if err := r.b.env.Create(ctx, spec); err != nil {
		return err
	}

	if len(r.b.opts.Toolchain.Bootstrap) > 0 {
		return r.exec(ctx, rep, r.b.opts.Toolchain.Bootstrap)
	}
	return nil
}

func (r *run) configure(ctx context.Context, rep *progress.Reporter) error {
	if err := distro.Validate(r.cfg); err != nil {
		return err
	}

	conf := installer.Translate(r.cfg)
	data, err := conf.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode installer configuration: %w", err)
	}
	sum, err := conf.Digest()
	if err != nil {
		return err
	}

	dest := filepath.Join(r.stage, installer.ConfigFile)
	if err := renameio.WriteFile(dest, data, 0o600); err != nil {
		return fmt.Errorf("failed to stage installer configuration: %w", err)
	}
	r.result.ConfigDigest = sum
	r.logger.Info("installer configuration staged", "path", dest, "digest", sum)
	rep.Logf("staged %s (%s, %d packages)", installer.ConfigFile, sum, len(conf.Packages))

	return r.exec(ctx, rep, r.b.opts.Toolchain.Installer)
}

func (r *run) postInstall(ctx context.Context, rep *progress.Reporter) error {
	plan := installer.PlanPostInstall(r.cfg)

	dest := filepath.Join(r.stage, scriptFile)
	if err := renameio.WriteFile(dest, []byte(plan.Script()), paths.DefaultFileMode); err != nil {
		return fmt.Errorf("failed to stage post-install script: %w", err)
	}
	rep.Logf("installing %d packages, enabling %d services", len(plan.Packages), len(plan.Services)+len(plan.UserServices))

	return r.exec(ctx, rep, r.b.opts.Toolchain.PostInstall)
}

func (r *run) assemble(ctx context.Context, rep *progress.Reporter) error {
	if err := r.exec(ctx, rep, r.b.opts.Toolchain.Assemble); err != nil {
		return err
	}

	src, err := findImage(r.scratch)
	if err != nil {
		return err
	}
	entries, err := verifyImage(src)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("nextiso-%s.iso", r.id)
	dest, err := filepath.Abs(filepath.Join(r.b.opts.Output, name))
	if err != nil {
		return err
	}
	if err := moveFile(src, dest); err != nil {
		return fmt.Errorf("%w: failed to move image into place: %w", ErrArtifact, err)
	}

	r.logger.Info("image written", "path", dest, "entries", entries)
	rep.Percent(100)
	r.result.ImagePath = dest
	r.result.ImageName = name
	return nil
}

// Destroys the environment and removes the scratch directory.
//
// Runs detached from ctx so that a cancelled build still cleans up. The
// staged configuration is kept for inspection.
func (r *run) teardown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	r.logger.Debug("tearing down", "environment", r.b.opts.Name)
	return errors.Join(
		r.b.env.Destroy(ctx, r.b.opts.Name),
		os.RemoveAll(r.scratch),
	)
}

// Runs a toolchain template inside the environment, forwarding output lines
// to rep.
func (r *run) exec(ctx context.Context, rep *progress.Reporter, template []string) error {
	argv, err := r.vars().expand(template)
	if err != nil {
		return err
	}

	rep.Log("$ " + process.New(argv[0], argv[1:]...).String())
	_, err = r.b.env.Exec(ctx, r.b.opts.Name, argv, func(_ process.Stream, line string) {
		rep.Log(line)
	})
	return err
}

func (r *run) vars() vars {
	return vars{
		varConfig:  envStage + "/" + installer.ConfigFile,
		varScript:  envStage + "/" + scriptFile,
		varWork:    envWork,
		varOutput:  envOutput,
		varProfile: r.b.opts.Profile,
		varLabel:   r.b.opts.Label,
	}
}
