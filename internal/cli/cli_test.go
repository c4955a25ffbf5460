package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextos/nextiso/internal/build"
	"github.com/nextos/nextiso/internal/progress"
	"github.com/nextos/nextiso/internal/runtime"
)

func parse(t *testing.T, args ...string) *Root {
	t.Helper()
	var root Root
	parser, err := kong.New(&root, options(context.Background())...)
	require.NoError(t, err)
	_, err = parser.Parse(args)
	require.NoError(t, err)
	return &root
}

func configFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("desktopEnvironment:\n  type: desktop\n"), 0o644))
	return path
}

func TestParseBuildFlags(t *testing.T) {
	cfg := configFile(t)

	root := parse(t, "build", "-c", cfg, "--engine", "podman", "--stage-timeout", "30m", "-o", "/srv/images")

	assert.Equal(t, cfg, root.Build.Config)
	assert.Equal(t, "podman", root.Build.Engine)
	assert.Equal(t, 30*time.Minute, root.Build.StageTimeout)
	assert.Equal(t, "/srv/images", root.Build.Output)
	assert.Equal(t, build.DefaultImage, root.Build.Image)
	assert.Equal(t, build.DefaultName, root.Build.Name)
	assert.Equal(t, "pretty", root.LogFormat)
}

func TestParseRejectsUnknownEngine(t *testing.T) {
	var root Root
	parser, err := kong.New(&root, options(context.Background())...)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"check", "--engine", "lxc"})

	assert.Error(t, err)
}

func TestEnvironmentSetsFlags(t *testing.T) {
	t.Setenv("NEXTISO_ENGINE", "containerd")
	t.Setenv("NEXTISO_LOG_FORMAT", "json")

	root := parse(t, "check")

	assert.Equal(t, "containerd", root.Check.Engine)
	assert.Equal(t, "json", root.LogFormat)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NEXTISO_CLI_TEST_VALUE=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("NEXTISO_CLI_TEST_VALUE") })

	loadEnv(path)

	assert.Equal(t, "from-file", os.Getenv("NEXTISO_CLI_TEST_VALUE"))
}

func TestLoadEnvMissingFileIsIgnored(t *testing.T) {
	loadEnv(filepath.Join(t.TempDir(), "missing.env"))
}

func TestBuilderOptions(t *testing.T) {
	flags := BuilderFlags{
		Image:        "archlinux:base-devel",
		Output:       "/srv/images",
		StageTimeout: time.Hour,
	}

	opts := flags.options()

	assert.Equal(t, "archlinux:base-devel", opts.Image)
	assert.Equal(t, build.DefaultName, opts.Name)
	assert.Equal(t, "/srv/images", opts.Output)
	assert.Equal(t, time.Hour, opts.StageTimeout)
	assert.NotEmpty(t, opts.BaseImageURL)
	assert.NotNil(t, opts.Meter)
	assert.NoError(t, opts.Toolchain.Validate())
}

func TestOpenUnknownEngine(t *testing.T) {
	_, _, err := EngineFlags{Engine: "lxc"}.open()
	assert.ErrorIs(t, err, runtime.ErrUnknownEngine)
}

func TestRendererPlain(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, true, false)

	r.Send(progress.Percent(build.StageAssetAcquisition, 42))
	r.Send(progress.Log(build.StageConfiguration, "installing packages"))
	r.Send(progress.Success("/images/nextiso-b1.iso", "nextiso-b1.iso"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"[asset-acquisition] 42%",
		"[configuration] installing packages",
		"image ready: /images/nextiso-b1.iso",
	}, lines)
}

func TestRendererQuietDropsLogs(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, true, true)

	r.Send(progress.Log(build.StageConfiguration, "installing packages"))
	r.Send(progress.Failure(build.StagePostInstall, "exit status 1"))

	assert.NotContains(t, buf.String(), "installing packages")
	assert.Contains(t, buf.String(), "build failed at post-install: exit status 1")
}

func TestRendererProgressBar(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, false, false)

	r.Send(progress.Percent(build.StageAssetAcquisition, 10))
	r.Send(progress.Percent(build.StageAssetAcquisition, 100))
	r.Send(progress.Log(build.StageEnvironmentSetup, "starting nextos-builder"))
	r.Send(progress.Success("/images/nextiso-b1.iso", "nextiso-b1.iso"))

	assert.Nil(t, r.bar)
	assert.Contains(t, buf.String(), "starting nextos-builder")
	assert.Contains(t, buf.String(), "image ready: /images/nextiso-b1.iso")
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	s := newJSONSink(&buf)

	s.Send(progress.Log(build.StagePreflight, "using docker 27.1"))
	s.Send(progress.Failure(build.StagePreflight, "docker is not installed"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var e progress.Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e))
	assert.Equal(t, progress.KindFailure, e.Kind)
	assert.Equal(t, build.StagePreflight, e.Stage)
}

func TestIsattyRejectsRegularFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.log"))
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, isatty(f))
}
