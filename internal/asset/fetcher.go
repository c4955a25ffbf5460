package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/google/renameio/v2"

	"github.com/nextos/nextiso/internal"
	"github.com/nextos/nextiso/internal/paths"
)

// Location of the latest Arch Linux installation image.
const BaseImageURL = "https://geo.mirror.pkgbuild.com/iso/latest/archlinux-x86_64.iso"

// Interval between byte-count log lines when the size is unknown.
const logEvery = 64 * datasize.MB

// Receives download progress.
//
// [*progress.Reporter] satisfies this interface.
type Observer interface {
	Percent(p float64)
	Log(text string)
}

type nopObserver struct{}

func (nopObserver) Percent(float64) {}
func (nopObserver) Log(string)      {}

// Downloads remote assets into local paths.
type Fetcher struct {
	Client *http.Client // HTTP client. Nil uses a client without an overall timeout.
	Logger *slog.Logger // Nil uses [slog.Default].
}

// Creates a fetcher with default settings.
func New() *Fetcher {
	return &Fetcher{
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   30 * time.Second,
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
	}
}

// Makes sure localPath exists, downloading it from remoteURL if needed.
//
// Returns true when a download took place. An existing regular file is
// accepted as is. On any failure the partial download is discarded and the
// error is a [*FetchError]. The observer may be nil.
func (f *Fetcher) Ensure(ctx context.Context, localPath, remoteURL string, obs Observer) (bool, error) {
	if obs == nil {
		obs = nopObserver{}
	}

	info, err := os.Stat(localPath)
	switch {
	case err == nil && info.Mode().IsRegular():
		f.logger().Debug("asset cached", "path", localPath)
		return false, nil
	case err == nil:
		return false, &FetchError{URL: remoteURL, Cause: fmt.Errorf("%w: %s", ErrNotRegular, localPath)}
	case !errors.Is(err, fs.ErrNotExist):
		return false, &FetchError{URL: remoteURL, Cause: err}
	}

	if err := f.download(ctx, localPath, remoteURL, obs); err != nil {
		return false, &FetchError{URL: remoteURL, Cause: err}
	}
	return true, nil
}

func (f *Fetcher) download(ctx context.Context, localPath, remoteURL string, obs Observer) error {
	if err := os.MkdirAll(filepath.Dir(localPath), paths.DefaultDirMode); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", internal.Name+"/"+internal.Version())

	resp, err := f.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	pending, err := renameio.NewPendingFile(localPath, renameio.WithPermissions(paths.DefaultFileMode))
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer pending.Cleanup()

	f.logger().Info("downloading asset", "url", remoteURL, "size", sizeOf(resp.ContentLength))

	m := &meter{total: resp.ContentLength, last: -1, nextLog: int64(logEvery), obs: obs}
	if m.total <= 0 {
		obs.Percent(0)
	}

	n, err := io.Copy(pending, io.TeeReader(resp.Body, m))
	if err != nil {
		return fmt.Errorf("download interrupted after %s: %w", datasize.ByteSize(n).HumanReadable(), err)
	}
	if m.total > 0 && n != m.total {
		return fmt.Errorf("download incomplete: received %d of %d bytes: %w", n, m.total, io.ErrUnexpectedEOF)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}

	if m.total <= 0 {
		obs.Log(fmt.Sprintf("downloaded %s", datasize.ByteSize(n).HumanReadable()))
	}
	f.logger().Info("asset downloaded", "path", localPath, "size", datasize.ByteSize(n).HumanReadable())
	return nil
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Counts bytes passing through and reports them to an observer.
type meter struct {
	total    int64 // Advertised length, or <= 0 when unknown.
	received int64
	last     int // Last whole percentage reported.
	nextLog  int64
	obs      Observer
}

func (m *meter) Write(p []byte) (int, error) {
	m.received += int64(len(p))

	if m.total > 0 {
		pct := int(m.received * 100 / m.total)
		if pct > 100 {
			pct = 100
		}
		if pct > m.last {
			m.last = pct
			m.obs.Percent(float64(pct))
		}
		return len(p), nil
	}

	if m.received >= m.nextLog {
		m.obs.Log(fmt.Sprintf("received %s", datasize.ByteSize(m.received).HumanReadable()))
		for m.nextLog <= m.received {
			m.nextLog += int64(logEvery)
		}
	}
	return len(p), nil
}

func sizeOf(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return datasize.ByteSize(n).HumanReadable()
}
