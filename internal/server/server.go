package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/nextos/nextiso/internal/build"
	"github.com/nextos/nextiso/internal/distro"
	"github.com/nextos/nextiso/internal/paths"
	"github.com/nextos/nextiso/internal/progress"
	"github.com/nextos/nextiso/internal/telemetry"
)

const (

	// Group name used to grant socket access. Members of this group can
	// connect to the daemon socket without owning the process.
	socketGroup = "nextiso"

	// File mode applied to the Unix socket. Owner and group get read-write
	// (required for connect); others get no access.
	socketMode = 0660

	// Time allowed for in-flight requests when shutting down.
	shutdownTimeout = 30 * time.Second

	// Largest accepted configuration document.
	maxBodySize = 1 << 20
)

// Runs builds. [*build.Builder] satisfies this interface.
type Builder interface {
	Run(ctx context.Context, cfg distro.BuildConfiguration, sink progress.Sink) (*build.Result, error)
	Busy() bool
	Builds() int64
}

// Reports build and stage totals. [*telemetry.Telemetry] satisfies this
// interface.
type Metrics interface {
	Stats(ctx context.Context) (telemetry.Stats, error)
}

// Holds server configuration.
type Config struct {
	SocketPath string       // Override for the Unix socket path. Empty uses the default.
	PIDFile    string       // Override for the PID file path. Empty uses the default.
	Builder    Builder      // Runs the builds. Required.
	Metrics    Metrics      // Totals reported by GET /status. Optional.
	Logger     *slog.Logger // Nil uses [slog.Default].
}

// Serves the build API on a Unix domain socket.
type Server struct {
	socketPath string             // Path to the Unix socket file.
	pidFile    string             // Path to the PID file.
	builder    Builder            // Runs builds.
	metrics    Metrics            // Build totals, may be nil.
	logger     *slog.Logger       // Server logger.
	router     chi.Router         // Routes requests to handlers.
	startedAt  time.Time          // Timestamp when the server was created.
	mu         sync.Mutex         // Protects stop.
	stop       context.CancelFunc // Ends Serve. Set while serving.
}

// Creates a new server instance.
//
// The socket is not opened until [Server.Serve] is called.
func New(cfg Config) (*Server, error) {
	if cfg.Builder == nil {
		return nil, fmt.Errorf("%w: a builder is required", ErrServer)
	}

	s := &Server{
		socketPath: cfg.SocketPath,
		pidFile:    cfg.PIDFile,
		builder:    cfg.Builder,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		startedAt:  time.Now(),
	}
	if s.socketPath == "" {
		s.socketPath = paths.Socket()
	}
	if s.pidFile == "" {
		s.pidFile = paths.PIDFile()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.router = s.routes()
	return s, nil
}

// Returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Returns the path of the socket the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLogger(s.logger))

	r.Post("/builds", s.handleBuild)
	r.Get("/status", s.handleStatus)
	r.Post("/shutdown", s.handleShutdown)
	return r
}

// Listens on the socket and serves requests until ctx is cancelled or a
// shutdown is requested.
//
// The socket and PID file are removed on return.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := listen(s.socketPath)
	if err != nil {
		return err
	}

	if err := writePID(s.pidFile); err != nil {
		s.logger.Warn("failed to write PID file", "error", err)
	}
	defer os.Remove(s.socketPath)
	defer os.Remove(s.pidFile)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.stop = cancel
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		s.logger.Info("server listening on socket", "path", s.socketPath)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: %w", ErrServer, err)
		}
		return nil
	})

	grp.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return grp.Wait()
}

// Asks a running Serve to return.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		s.stop()
	}
}

// Creates the Unix socket listener, removes any stale socket from a previous
// run, and applies permissions.
func listen(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to listen on %s: %w", ErrServer, socketPath, err)
	}

	if err := setSocketPermissions(socketPath); err != nil {
		listener.Close()
		return nil, err
	}

	return listener, nil
}

// Restricts socket access to owner and group. Any user in the nextiso
// group can also connect.
func setSocketPermissions(socketPath string) error {
	if err := os.Chmod(socketPath, socketMode); err != nil {
		return fmt.Errorf("%w: failed to chmod socket %s: %w", ErrServer, socketPath, err)
	}

	if g, err := user.LookupGroup(socketGroup); err == nil {
		if gid, err := strconv.Atoi(g.Gid); err == nil {
			if err := os.Chown(socketPath, -1, gid); err != nil {
				slog.Warn("failed to chgrp socket", "group", socketGroup, "error", err)
			}
		}
	} else {
		slog.Debug("socket group not found, socket accessible to owner only", "group", socketGroup)
	}

	return nil
}

// Writes the daemon PID so the CLI can tell whether the daemon is running.
func writePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), paths.DefaultFileMode)
}
