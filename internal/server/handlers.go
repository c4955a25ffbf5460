package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nextos/nextiso/internal"
	"github.com/nextos/nextiso/internal/build"
	"github.com/nextos/nextiso/internal/distro"
	"github.com/nextos/nextiso/internal/progress"
	"github.com/nextos/nextiso/internal/telemetry"
)

// Content type of the build event stream.
const ndjson = "application/x-ndjson"

// Response body of GET /status.
type StatusResult struct {
	Running bool   `json:"running"`
	Version string `json:"version"`
	PID     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Builds  int64  `json:"builds"`
	Busy    bool   `json:"busy"`

	Metrics *telemetry.Stats `json:"metrics,omitempty"` // Absent when the daemon keeps no metrics.
}

// Response body of a failed request.
type ErrorResult struct {
	Message string `json:"message"`
}

// Handles POST /builds.
//
// Runs a build from the configuration in the body and streams its events.
// The build is cancelled if the client goes away.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	cfg, err := distro.Parse(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if s.builder.Busy() {
		writeError(w, http.StatusConflict, build.ErrBuildAlreadyInProgress)
		return
	}

	w.Header().Set("Content-Type", ndjson)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	sink := newStreamSink(w)
	res, err := s.builder.Run(r.Context(), cfg, sink)

	logger := s.logger.With("request", middleware.GetReqID(r.Context()))
	switch {
	case errors.Is(err, build.ErrBuildAlreadyInProgress):
		logger.Info("build rejected", "error", err)
	case err != nil:
		logger.Warn("build failed", "error", err)
	default:
		logger.Info("build succeeded", "image", res.ImagePath, "id", res.ID)
	}
	if sink.err != nil {
		logger.Debug("client stopped reading events", "error", sink.err)
	}
}

// Handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := &StatusResult{
		Running: true,
		Version: internal.VersionString(),
		PID:     os.Getpid(),
		Uptime:  time.Since(s.startedAt).Truncate(time.Second).String(),
		Builds:  s.builder.Builds(),
		Busy:    s.builder.Busy(),
	}
	if s.metrics != nil {
		stats, err := s.metrics.Stats(r.Context())
		if err != nil {
			s.logger.Warn("failed to read metrics", "error", err)
		} else {
			st.Metrics = &stats
		}
	}
	writeJSON(w, http.StatusOK, st)
}

// Handles POST /shutdown.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusAccepted)
	s.logger.Info("shutdown requested")
	go s.Stop()
}

// Writes each event as one JSON line and flushes it to the client.
type streamSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	rc  *http.ResponseController
	err error // First write error. Later events are dropped.
}

func newStreamSink(w http.ResponseWriter) *streamSink {
	return &streamSink{enc: json.NewEncoder(w), rc: http.NewResponseController(w)}
}

func (s *streamSink) Send(e progress.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if err := s.enc.Encode(e); err != nil {
		s.err = err
		return
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.err = err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, &ErrorResult{Message: err.Error()})
}
