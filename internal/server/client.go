package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/nextos/nextiso/internal/distro"
	"github.com/nextos/nextiso/internal/paths"
	"github.com/nextos/nextiso/internal/progress"
)

// Talks to a daemon over its Unix socket.
type Client struct {
	http *http.Client
	base string
}

// Creates a client for the daemon listening on socketPath. An empty path
// uses the default socket.
func NewClient(socketPath string) *Client {
	if socketPath == "" {
		socketPath = paths.Socket()
	}
	dialer := &net.Dialer{}
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, "unix", socketPath)
				},
			},
		},
		base: "http://nextiso",
	}
}

// Returns the daemon's status. Fails with [ErrNotRunning] when nothing
// listens on the socket.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var st StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return &st, nil
}

// Runs a build on the daemon, forwarding its events to sink.
//
// Returns the terminal event. A failed build is not an error here; the
// caller inspects the event kind.
func (c *Client) Build(ctx context.Context, cfg distro.BuildConfiguration, sink progress.Sink) (progress.Event, error) {
	if sink == nil {
		sink = progress.Discard
	}

	cfg = cfg.Clone()
	if cfg.SelectedPackages == nil {
		cfg.SelectedPackages = map[string]bool{}
	}
	if cfg.SystemConfig.UserAccount.Groups == nil {
		cfg.SystemConfig.UserAccount.Groups = []string{}
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return progress.Event{}, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/builds", bytes.NewReader(body))
	if err != nil {
		return progress.Event{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return progress.Event{}, responseError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		var e progress.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return progress.Event{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
		}
		sink.Send(e)
		if e.Terminal() {
			return e, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return progress.Event{}, err
	}
	return progress.Event{}, ErrStreamCutOff
}

// Asks the daemon to stop.
func (c *Client) Shutdown(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/shutdown", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return responseError(resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %w", ErrNotRunning, err)
		}
		return nil, err
	}
	return resp, nil
}

// Converts a non-success response into an error carrying the daemon's message.
func responseError(resp *http.Response) error {
	var er ErrorResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&er); err != nil || er.Message == "" {
		return fmt.Errorf("%w: %s", ErrBadResponse, resp.Status)
	}
	return fmt.Errorf("daemon: %s (%d)", er.Message, resp.StatusCode)
}
