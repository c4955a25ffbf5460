package process

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineLog struct {
	mu    sync.Mutex
	lines map[Stream][]string
}

func (l *lineLog) handle(s Stream, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lines == nil {
		l.lines = make(map[Stream][]string)
	}
	l.lines[s] = append(l.lines[s], line)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunCapturesOutput(t *testing.T) {
	requireShell(t)

	var log lineLog
	res, err := NewExec(0).Run(context.Background(),
		New("sh", "-c", "printf 'one\\ntwo\\n'; printf 'warn\\n' >&2"),
		log.handle)

	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "one\ntwo", res.Stdout)
	assert.Equal(t, "warn\n", res.Stderr)
	assert.Equal(t, []string{"one", "two"}, log.lines[Stdout])
	assert.Equal(t, []string{"warn"}, log.lines[Stderr])
}

func TestRunSplitsCarriageReturns(t *testing.T) {
	requireShell(t)

	var log lineLog
	_, err := NewExec(0).Run(context.Background(),
		New("sh", "-c", "printf '10%%\\r50%%\\r100%%\\r\\ndone'"),
		log.handle)

	require.NoError(t, err)
	assert.Equal(t, []string{"10%", "50%", "100%", "done"}, log.lines[Stdout])
}

func TestRunNonZeroExit(t *testing.T) {
	requireShell(t)

	res, err := NewExec(0).Run(context.Background(),
		New("sh", "-c", "echo 'disk full' >&2; exit 3"), nil)

	var failed *CommandFailed
	require.ErrorAs(t, err, &failed)
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.Equal(t, 3, failed.ExitCode)
	assert.Equal(t, "disk full\n", failed.Stderr)
	assert.Contains(t, failed.Error(), "disk full")
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ExitCode)
}

func TestRunMissingExecutable(t *testing.T) {
	_, err := NewExec(0).Run(context.Background(), New("nextiso-definitely-not-installed"), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.NotErrorIs(t, err, ErrCommandFailed)
}

func TestRunTimeout(t *testing.T) {
	requireShell(t)

	start := time.Now()
	_, err := NewExec(100*time.Millisecond).Run(context.Background(), New("sh", "-c", "sleep 10"), nil)

	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 8*time.Second)
}

func TestRunCancelled(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := NewExec(0).Run(ctx, New("sh", "-c", "sleep 10"), nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestRunPassesEnvAndDir(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	cmd := New("sh", "-c", "echo \"$NEXTISO_TEST_VALUE\"; pwd")
	cmd.Env = []string{"NEXTISO_TEST_VALUE=hello"}
	cmd.Dir = dir

	res, err := NewExec(0).Run(context.Background(), cmd, nil)

	require.NoError(t, err)
	lines := strings.Split(res.Stdout, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "hello", lines[0])
	assert.Equal(t, filepath.Base(dir), filepath.Base(lines[1]))
}

func TestCommandStringQuotes(t *testing.T) {
	cmd := New("docker", "exec", "nextos-builder", "bash", "-c", "pacman -S --noconfirm vim")
	assert.Equal(t, "docker exec nextos-builder bash -c 'pacman -S --noconfirm vim'", cmd.String())
}

func TestLineWriter(t *testing.T) {
	var log lineLog
	w := NewLineWriter(Stderr, log.handle)

	w.Write([]byte("par"))
	w.Write([]byte("tial\r\nnext\rlast"))
	assert.Equal(t, []string{"partial", "next"}, log.lines[Stderr])

	w.Flush()
	assert.Equal(t, []string{"partial", "next", "last"}, log.lines[Stderr])
}

func TestScanLinesWaitsForCRLF(t *testing.T) {
	advance, token, _ := scanLines([]byte("abc\r"), false)
	assert.Equal(t, 0, advance)
	assert.Nil(t, token)

	advance, token, _ = scanLines([]byte("abc\r"), true)
	assert.Equal(t, 4, advance)
	assert.Equal(t, "abc", string(token))
}
