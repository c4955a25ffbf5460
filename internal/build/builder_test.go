package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kdomanski/iso9660"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/nextos/nextiso/internal/asset"
	"github.com/nextos/nextiso/internal/distro"
	"github.com/nextos/nextiso/internal/installer"
	"github.com/nextos/nextiso/internal/process"
	"github.com/nextos/nextiso/internal/progress"
	"github.com/nextos/nextiso/internal/runtime"
)

// Records calls and simulates a container engine.
type fakeEnv struct {
	tracker runtime.Tracker

	mu         sync.Mutex
	calls      []string
	spec       runtime.Spec
	destroyed  int
	destroyCtx error // ctx.Err() seen by Destroy.

	checkErr   error
	checkHook  func()
	createErr  error
	destroyErr error
	execHook   func(ctx context.Context, argv []string) error // Runs before the default behaviour.
	noImage    bool                                           // Assembler writes nothing.
	badImage   bool                                           // Assembler writes garbage.
}

func (f *fakeEnv) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEnv) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEnv) Destroyed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

func (f *fakeEnv) Check(ctx context.Context) (runtime.EngineInfo, error) {
	f.record("check")
	if f.checkHook != nil {
		f.checkHook()
	}
	if f.checkErr != nil {
		return runtime.EngineInfo{}, f.checkErr
	}
	return runtime.EngineInfo{Engine: "fake", Server: "1.0"}, nil
}

func (f *fakeEnv) Reset(ctx context.Context, name string) error {
	f.record("reset")
	f.tracker.Observe(name, runtime.StateAbsent)
	return nil
}

func (f *fakeEnv) Create(ctx context.Context, spec runtime.Spec) error {
	f.record("create")
	f.mu.Lock()
	f.spec = spec
	f.mu.Unlock()

	if err := f.tracker.Transition(spec.Name, runtime.StateCreated); err != nil {
		return err
	}
	if f.createErr != nil {
		return f.createErr
	}
	return f.tracker.Transition(spec.Name, runtime.StateRunning)
}

func (f *fakeEnv) Exec(ctx context.Context, name string, argv []string, handler process.LineHandler) (*process.Result, error) {
	f.record("exec " + argv[0])
	if err := f.tracker.RequireRunning(name); err != nil {
		return nil, err
	}
	if f.execHook != nil {
		if err := f.execHook(ctx, argv); err != nil {
			return nil, err
		}
	}

	handler(process.Stdout, "running "+argv[0])
	if argv[0] == "mkarchiso" {
		if err := f.writeImage(); err != nil {
			return nil, err
		}
	}
	return &process.Result{}, nil
}

func (f *fakeEnv) Status(ctx context.Context, name string) (runtime.State, error) {
	return f.tracker.State(name), nil
}

func (f *fakeEnv) Destroy(ctx context.Context, name string) error {
	f.record("destroy")
	f.mu.Lock()
	f.destroyed++
	f.destroyCtx = ctx.Err()
	f.mu.Unlock()
	f.tracker.Observe(name, runtime.StateRemoved)
	return f.destroyErr
}

// Writes an image into the host directory mounted at the output path.
func (f *fakeEnv) writeImage() error {
	f.mu.Lock()
	var dir string
	for _, m := range f.spec.Mounts {
		if m.Destination == envOutput {
			dir = m.Source
		}
	}
	f.mu.Unlock()

	dest := filepath.Join(dir, "archlinux-2026.10.18-x86_64.iso")
	switch {
	case f.noImage:
		return nil
	case f.badImage:
		return os.WriteFile(dest, []byte("not an image"), 0o644)
	default:
		return writeISO(dest)
	}
}

func writeISO(dest string) error {
	w, err := iso9660.NewWriter()
	if err != nil {
		return err
	}
	defer w.Cleanup()

	if err := w.AddFile(strings.NewReader("nextos live image\n"), "README.TXT"); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	return w.WriteTo(out, "NEXTISO")
}

// Writes a placeholder file and reports progress.
type fakeFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *fakeFetcher) Ensure(ctx context.Context, localPath, remoteURL string, obs asset.Observer) (bool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return false, f.err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return false, err
	}
	obs.Percent(50)
	obs.Percent(100)
	return true, os.WriteFile(localPath, []byte("base"), 0o644)
}

func validConfig() distro.BuildConfiguration {
	c := distro.Default()
	c.DesktopEnvironment.SelectedDE = "kde"
	c.SystemConfig.UserAccount.Username = "alice"
	c.SystemConfig.UserAccount.Password = "secret"
	c.SystemConfig.RootPassword = "rootsecret"
	c.SelectedPackages = map[string]bool{"firefox": true, "vim": true}
	return c
}

type fixture struct {
	env     *fakeEnv
	fetcher *fakeFetcher
	opts    Options
	builder *Builder
}

func newFixture(t *testing.T, env *fakeEnv) *fixture {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		BaseImage:    filepath.Join(dir, "cache", "arch.iso"),
		BaseImageURL: "http://mirror.invalid/arch.iso",
		Work:         filepath.Join(dir, "work"),
		Output:       filepath.Join(dir, "images"),
	}
	fetcher := &fakeFetcher{}

	b, err := New(env, fetcher, opts)
	require.NoError(t, err)
	b.newID = func() string { return "b1" }

	return &fixture{env: env, fetcher: fetcher, opts: b.opts, builder: b}
}

func ordinal(name string) int {
	for _, s := range stages {
		if s.Name == name {
			return s.Ordinal
		}
	}
	return 0
}

// Checks ordering and that exactly one terminal event comes last.
func assertWellFormed(t *testing.T, events []progress.Event) {
	t.Helper()
	require.NotEmpty(t, events)

	terminals := 0
	for _, e := range events {
		if e.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals, "exactly one terminal event")
	assert.True(t, events[len(events)-1].Terminal(), "terminal event must be last")

	last := 0
	for _, e := range events[:len(events)-1] {
		n := ordinal(e.Stage)
		assert.GreaterOrEqual(t, n, last, "event from %s after a later stage", e.Stage)
		last = n
	}
}

func TestRunProducesImage(t *testing.T) {
	fx := newFixture(t, &fakeEnv{})
	var rec progress.Recorder

	res, err := fx.builder.Run(context.Background(), validConfig(), &rec)

	require.NoError(t, err)
	assert.Equal(t, "b1", res.ID)
	assert.Equal(t, "nextiso-b1.iso", res.ImageName)
	assert.Equal(t, filepath.Join(fx.opts.Output, "nextiso-b1.iso"), res.ImagePath)
	assert.FileExists(t, res.ImagePath)
	assert.NotEmpty(t, res.ConfigDigest)

	assert.Equal(t, []string{
		"check", "reset", "create",
		"exec pacman", "exec archinstall", "exec bash", "exec mkarchiso",
		"destroy",
	}, fx.env.Calls())
	assert.EqualValues(t, 1, fx.fetcher.calls.Load())

	events := rec.Events()
	assertWellFormed(t, events)
	last := events[len(events)-1]
	assert.Equal(t, progress.KindSuccess, last.Kind)
	assert.Equal(t, res.ImagePath, last.ImagePath)
	assert.True(t, strings.HasSuffix(last.ImagePath, ".iso"))

	staged := filepath.Join(fx.opts.Work, "stage", "b1", installer.ConfigFile)
	info, err := os.Stat(staged)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.FileExists(t, filepath.Join(fx.opts.Work, "stage", "b1", scriptFile))
	assert.NoDirExists(t, filepath.Join(fx.opts.Work, "output", "b1"))
	assert.False(t, fx.builder.Busy())
	assert.EqualValues(t, 1, fx.builder.Builds())
}

func TestRunMountsAndPrivileges(t *testing.T) {
	fx := newFixture(t, &fakeEnv{})

	_, err := fx.builder.Run(context.Background(), validConfig(), nil)
	require.NoError(t, err)

	spec := fx.env.spec
	assert.Equal(t, DefaultName, spec.Name)
	assert.Equal(t, DefaultImage, spec.Image)
	assert.True(t, spec.Privileged)
	require.Len(t, spec.Mounts, 3)
	assert.Equal(t, runtime.Mount{Source: fx.opts.BaseImage, Destination: envBaseImage, ReadOnly: true}, spec.Mounts[0])
	assert.Equal(t, envStage, spec.Mounts[1].Destination)
	assert.Equal(t, envOutput, spec.Mounts[2].Destination)
}

func TestRunPassesStagedPathsToToolchain(t *testing.T) {
	var argvs [][]string
	env := &fakeEnv{execHook: func(ctx context.Context, argv []string) error {
		argvs = append(argvs, argv)
		return nil
	}}
	fx := newFixture(t, env)

	_, err := fx.builder.Run(context.Background(), validConfig(), nil)
	require.NoError(t, err)

	require.Len(t, argvs, 4)
	assert.Equal(t, []string{"archinstall", "--config", "/nextiso/stage/archinstall.json", "--silent"}, argvs[1])
	assert.Equal(t, []string{"bash", "/nextiso/stage/postinstall.sh"}, argvs[2])
	assert.Equal(t, []string{"mkarchiso", "-v", "-L", DefaultLabel, "-w", envWork, "-o", envOutput, DefaultProfile}, argvs[3])
}

func TestRunForwardsCommandOutput(t *testing.T) {
	fx := newFixture(t, &fakeEnv{})
	var rec progress.Recorder

	_, err := fx.builder.Run(context.Background(), validConfig(), &rec)
	require.NoError(t, err)

	var texts []string
	for _, e := range rec.OfKind(progress.KindLog) {
		if e.Stage == StageConfiguration {
			texts = append(texts, e.Text)
		}
	}
	assert.Contains(t, texts, "running archinstall")
	assert.Contains(t, texts, "$ archinstall --config /nextiso/stage/archinstall.json --silent")
}

func TestRunSkipsCachedAsset(t *testing.T) {
	fx := newFixture(t, &fakeEnv{})
	require.NoError(t, os.MkdirAll(filepath.Dir(fx.opts.BaseImage), 0o755))
	require.NoError(t, os.WriteFile(fx.opts.BaseImage, []byte("cached"), 0o644))
	var rec progress.Recorder

	_, err := fx.builder.Run(context.Background(), validConfig(), &rec)

	require.NoError(t, err)
	assert.Zero(t, fx.fetcher.calls.Load())
	for _, e := range rec.Events() {
		assert.NotEqual(t, StageAssetAcquisition, e.Stage)
	}
}

func TestRunReportsDownloadProgress(t *testing.T) {
	fx := newFixture(t, &fakeEnv{})
	var rec progress.Recorder

	_, err := fx.builder.Run(context.Background(), validConfig(), &rec)
	require.NoError(t, err)

	var percents []float64
	for _, e := range rec.OfKind(progress.KindPercent) {
		if e.Stage == StageAssetAcquisition {
			percents = append(percents, e.Percent)
		}
	}
	assert.Equal(t, []float64{50, 100}, percents)
}

func TestPreflightFailureTouchesNothing(t *testing.T) {
	missing := &runtime.DependencyMissing{Engine: "docker", Reason: runtime.NotInstalled}
	fx := newFixture(t, &fakeEnv{checkErr: missing})
	var rec progress.Recorder

	_, err := fx.builder.Run(context.Background(), validConfig(), &rec)

	require.ErrorIs(t, err, ErrDependencyMissing)
	var dm *runtime.DependencyMissing
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, "docker", dm.Engine)

	assert.Equal(t, []string{"check"}, fx.env.Calls())
	assert.Zero(t, fx.fetcher.calls.Load())

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, progress.KindFailure, events[0].Kind)
	assert.Equal(t, StagePreflight, events[0].Stage)
}

func TestAssetFailureSkipsTeardown(t *testing.T) {
	fx := newFixture(t, &fakeEnv{})
	fx.fetcher.err = &asset.FetchError{URL: fx.opts.BaseImageURL, Cause: errors.New("connection refused")}
	var rec progress.Recorder

	_, err := fx.builder.Run(context.Background(), validConfig(), &rec)

	require.ErrorIs(t, err, ErrAsset)
	assert.ErrorIs(t, err, asset.ErrFetch)
	assert.Zero(t, fx.env.Destroyed())
	last, _ := rec.Last()
	assert.Equal(t, StageAssetAcquisition, last.Stage)
}

func TestTeardownRunsOnceAfterFailure(t *testing.T) {
	failing := func(tool string) func(context.Context, []string) error {
		return func(ctx context.Context, argv []string) error {
			if argv[0] == tool {
				return &process.CommandFailed{ExitCode: 1, Command: tool, Stderr: "boom\n"}
			}
			return nil
		}
	}

	tests := []struct {
		name  string
		env   *fakeEnv
		stage string
		kind  error
	}{
		{"create", &fakeEnv{createErr: runtime.ErrEnvironmentStart}, StageEnvironmentSetup, ErrEnvironmentStart},
		{"bootstrap", &fakeEnv{execHook: failing("pacman")}, StageEnvironmentSetup, ErrEnvironmentStart},
		{"installer", &fakeEnv{execHook: failing("archinstall")}, StageConfiguration, ErrConfiguration},
		{"post-install", &fakeEnv{execHook: failing("bash")}, StagePostInstall, ErrPostInstall},
		{"assembler", &fakeEnv{execHook: failing("mkarchiso")}, StageImageAssembly, ErrAssembly},
		{"no image", &fakeEnv{noImage: true}, StageImageAssembly, ErrAssembly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, tt.env)
			var rec progress.Recorder

			_, err := fx.builder.Run(context.Background(), validConfig(), &rec)

			require.ErrorIs(t, err, tt.kind)
			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.stage, se.Stage)
			assert.Equal(t, 1, tt.env.Destroyed())

			calls := tt.env.Calls()
			assert.Equal(t, "destroy", calls[len(calls)-1])

			events := rec.Events()
			assertWellFormed(t, events)
			assert.Equal(t, tt.stage, events[len(events)-1].Stage)
			assert.NoDirExists(t, filepath.Join(fx.opts.Work, "output", "b1"))
		})
	}
}

func TestCommandFailureCarriesStderr(t *testing.T) {
	stderr := "error: target not found: nonexistent-package\n"
	env := &fakeEnv{execHook: func(ctx context.Context, argv []string) error {
		if argv[0] == "bash" {
			return &process.CommandFailed{ExitCode: 2, Command: "bash /nextiso/stage/postinstall.sh", Stderr: stderr}
		}
		return nil
	}}
	fx := newFixture(t, env)
	var rec progress.Recorder

	_, err := fx.builder.Run(context.Background(), validConfig(), &rec)

	var failed *process.CommandFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 2, failed.ExitCode)
	assert.Equal(t, stderr, failed.Stderr)
	assert.ErrorIs(t, err, ErrPostInstall)
	assert.ErrorIs(t, err, process.ErrCommandFailed)

	last, _ := rec.Last()
	assert.Equal(t, progress.KindFailure, last.Kind)
	assert.Equal(t, StagePostInstall, last.Stage)
	assert.Contains(t, last.Message, "target not found: nonexistent-package")
}

func TestInvalidConfigurationFailsConfigurationStage(t *testing.T) {
	fx := newFixture(t, &fakeEnv{})
	cfg := validConfig()
	cfg.SystemConfig.Hostname = "not a hostname!"
	var rec progress.Recorder

	_, err := fx.builder.Run(context.Background(), cfg, &rec)

	require.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, distro.ErrInvalidConfiguration)
	assert.NotContains(t, fx.env.Calls(), "exec archinstall")
	assert.Equal(t, 1, fx.env.Destroyed())
	assertWellFormed(t, rec.Events())
}

func TestCorruptImageIsRejected(t *testing.T) {
	fx := newFixture(t, &fakeEnv{badImage: true})

	_, err := fx.builder.Run(context.Background(), validConfig(), nil)

	require.ErrorIs(t, err, ErrAssembly)
	assert.ErrorIs(t, err, ErrArtifact)
	assert.NoFileExists(t, filepath.Join(fx.opts.Output, "nextiso-b1.iso"))
}

func TestCancelledBuildStillTearsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := &fakeEnv{execHook: func(ctx context.Context, argv []string) error {
		if argv[0] == "archinstall" {
			cancel()
			return ctx.Err()
		}
		return nil
	}}
	fx := newFixture(t, env)
	var rec progress.Recorder

	_, err := fx.builder.Run(ctx, validConfig(), &rec)

	require.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 1, env.Destroyed())
	assert.NoError(t, env.destroyCtx, "teardown must not inherit cancellation")
	assertWellFormed(t, rec.Events())
}

func TestStageTimeout(t *testing.T) {
	env := &fakeEnv{execHook: func(ctx context.Context, argv []string) error {
		if argv[0] == "archinstall" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}}
	dir := t.TempDir()
	b, err := New(env, &fakeFetcher{}, Options{
		BaseImage:    filepath.Join(dir, "arch.iso"),
		Work:         filepath.Join(dir, "work"),
		Output:       filepath.Join(dir, "images"),
		StageTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = b.Run(context.Background(), validConfig(), nil)

	require.ErrorIs(t, err, ErrStageTimeout)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 1, env.Destroyed())
}

func TestTeardownFailureAfterSuccessIsLogged(t *testing.T) {
	fx := newFixture(t, &fakeEnv{destroyErr: errors.New("container is stuck")})
	var rec progress.Recorder

	res, err := fx.builder.Run(context.Background(), validConfig(), &rec)

	require.NoError(t, err)
	assert.FileExists(t, res.ImagePath)

	events := rec.Events()
	assertWellFormed(t, events)
	assert.Equal(t, progress.KindSuccess, events[len(events)-1].Kind)

	var logged bool
	for _, e := range rec.OfKind(progress.KindLog) {
		if e.Stage == StageTeardown && strings.Contains(e.Text, "container is stuck") {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestTeardownFailureDoesNotMaskFailure(t *testing.T) {
	stuck := errors.New("container is stuck")
	env := &fakeEnv{
		destroyErr: stuck,
		execHook: func(ctx context.Context, argv []string) error {
			if argv[0] == "mkarchiso" {
				return &process.CommandFailed{ExitCode: 1, Command: "mkarchiso", Stderr: "no space left on device\n"}
			}
			return nil
		},
	}
	fx := newFixture(t, env)
	var rec progress.Recorder

	_, err := fx.builder.Run(context.Background(), validConfig(), &rec)

	require.ErrorIs(t, err, ErrAssembly)
	assert.ErrorIs(t, err, process.ErrCommandFailed)
	assert.ErrorIs(t, err, stuck)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageImageAssembly, se.Stage)
	assert.Equal(t, ErrAssembly, se.Kind)
	assert.True(t, strings.HasPrefix(err.Error(), "image-assembly: mkarchiso exited with code 1"), err.Error())
	assert.Contains(t, err.Error(), "; teardown also failed: container is stuck")

	events := rec.Events()
	assertWellFormed(t, events)
	last := events[len(events)-1]
	assert.Equal(t, progress.KindFailure, last.Kind)
	assert.Equal(t, StageImageAssembly, last.Stage)
	assert.Contains(t, last.Message, "container is stuck")

	var logged bool
	for _, e := range rec.OfKind(progress.KindLog) {
		if e.Stage == StageTeardown && strings.Contains(e.Text, "teardown failed: container is stuck") {
			logged = true
		}
	}
	assert.True(t, logged, "teardown failure must be reported as an event")
}

func TestTeardownFailureAfterInstallerFailureIsVisible(t *testing.T) {
	env := &fakeEnv{
		destroyErr: errors.New("container is stuck"),
		execHook: func(ctx context.Context, argv []string) error {
			if argv[0] == "archinstall" {
				return &process.CommandFailed{ExitCode: 1, Command: "archinstall", Stderr: "bad config"}
			}
			return nil
		},
	}
	fx := newFixture(t, env)
	var rec progress.Recorder

	_, err := fx.builder.Run(context.Background(), validConfig(), &rec)

	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 1, env.Destroyed())

	last, _ := rec.Last()
	assert.Equal(t, StageConfiguration, last.Stage)
	assert.Contains(t, last.Message, "bad config")
	assert.Contains(t, last.Message, "teardown also failed: container is stuck")
}

func TestConcurrentRunIsRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	env := &fakeEnv{checkHook: func() {
		close(entered)
		<-release
	}}
	fx := newFixture(t, env)

	done := make(chan error, 1)
	go func() {
		_, err := fx.builder.Run(context.Background(), validConfig(), nil)
		done <- err
	}()
	<-entered

	var rec progress.Recorder
	_, err := fx.builder.Run(context.Background(), validConfig(), &rec)

	require.ErrorIs(t, err, ErrBuildAlreadyInProgress)
	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, progress.KindFailure, events[0].Kind)

	close(release)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, fx.builder.Builds())
	assert.Equal(t, []string{"check"}, env.Calls()[:1])
}

func TestConfigurationIsSnapshotted(t *testing.T) {
	cfg := validConfig()
	entered := make(chan struct{})
	release := make(chan struct{})
	env := &fakeEnv{checkHook: func() {
		close(entered)
		<-release
	}}
	fx := newFixture(t, env)

	done := make(chan error, 1)
	go func() {
		_, err := fx.builder.Run(context.Background(), cfg, nil)
		done <- err
	}()
	<-entered
	cfg.SelectedPackages["not-a-real-package"] = true
	close(release)

	require.NoError(t, <-done)
}

func TestStream(t *testing.T) {
	fx := newFixture(t, &fakeEnv{})

	var events []progress.Event
	for e := range fx.builder.Stream(context.Background(), validConfig()) {
		events = append(events, e)
	}

	assertWellFormed(t, events)
	assert.Equal(t, progress.KindSuccess, events[len(events)-1].Kind)
}

func TestNewWithMeter(t *testing.T) {
	dir := t.TempDir()
	b, err := New(&fakeEnv{}, &fakeFetcher{}, Options{
		BaseImage: filepath.Join(dir, "arch.iso"),
		Work:      filepath.Join(dir, "work"),
		Output:    filepath.Join(dir, "images"),
		Meter:     noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)
	require.NotNil(t, b.metrics)

	_, err = b.Run(context.Background(), validConfig(), nil)
	assert.NoError(t, err)
}

func TestNewRejectsIncompleteToolchain(t *testing.T) {
	tc := DefaultToolchain()
	tc.Installer = []string{"archinstall", "--silent"}

	_, err := New(&fakeEnv{}, nil, Options{Toolchain: tc})

	assert.ErrorIs(t, err, ErrToolchain)
}

func TestInstallerFailureReportsStderrAndStage(t *testing.T) {
	env := &fakeEnv{execHook: func(ctx context.Context, argv []string) error {
		if argv[0] == "archinstall" {
			return &process.CommandFailed{ExitCode: 1, Command: "archinstall --silent", Stderr: "bad config"}
		}
		return nil
	}}
	fx := newFixture(t, env)
	var rec progress.Recorder

	_, err := fx.builder.Run(context.Background(), validConfig(), &rec)

	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 1, env.Destroyed())

	last, _ := rec.Last()
	assert.Equal(t, progress.KindFailure, last.Kind)
	assert.Equal(t, StageConfiguration, last.Stage)
	assert.Contains(t, last.Message, "bad config")
	assert.Contains(t, last.Message, "exited with code 1")
}

func TestUnreachableEngine(t *testing.T) {
	unreachable := &runtime.DependencyMissing{Engine: "docker", Reason: runtime.Unreachable, Detail: "Cannot connect to the Docker daemon"}
	fx := newFixture(t, &fakeEnv{checkErr: unreachable})
	var rec progress.Recorder

	_, err := fx.builder.Run(context.Background(), validConfig(), &rec)

	require.ErrorIs(t, err, ErrDependencyMissing)
	assert.NotContains(t, fx.env.Calls(), "create")
	assert.Zero(t, fx.env.Destroyed())

	last, _ := rec.Last()
	assert.Equal(t, StagePreflight, last.Stage)
	assert.Contains(t, last.Message, unreachable.Error())
}

func TestRunRecordsStageDurations(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	dir := t.TempDir()
	b, err := New(&fakeEnv{}, &fakeFetcher{}, Options{
		BaseImage: filepath.Join(dir, "arch.iso"),
		Work:      filepath.Join(dir, "work"),
		Output:    filepath.Join(dir, "images"),
		Meter:     provider.Meter("test"),
	})
	require.NoError(t, err)

	_, err = b.Run(context.Background(), validConfig(), nil)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	stages := map[string]uint64{}
	var builds int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Histogram[float64]:
				if m.Name != MetricStageDuration {
					continue
				}
				for _, dp := range data.DataPoints {
					stage, _ := dp.Attributes.Value("stage")
					stages[stage.AsString()] += dp.Count
				}
			case metricdata.Sum[int64]:
				if m.Name != MetricBuildsTotal {
					continue
				}
				for _, dp := range data.DataPoints {
					builds += dp.Value
				}
			}
		}
	}

	assert.EqualValues(t, 1, builds)
	for _, st := range Stages() {
		if st.Name == StageTeardown {
			continue
		}
		assert.EqualValues(t, 1, stages[st.Name], st.Name)
	}
}
