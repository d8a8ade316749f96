// Package agent implements the per-host HTTP surface the controller talks
// to. Every endpoint under /api requires a signed timestamp; engine calls go
// through a bounded worker pool so a stuck daemon cannot exhaust the server.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/quenary/tugtainer/internal/api"
	"github.com/quenary/tugtainer/internal/clock"
	"github.com/quenary/tugtainer/internal/config"
	"github.com/quenary/tugtainer/internal/docker"
	"github.com/quenary/tugtainer/internal/logging"
	"github.com/quenary/tugtainer/internal/signing"
)

const (
	// defaultTimeout bounds cheap engine calls (inspect, list, exists).
	defaultTimeout = 15 * time.Second
	// heavyTimeout bounds lifecycle operations (create, start, stop, pull).
	heavyTimeout = 600 * time.Second
	// manifestTimeout bounds registry round-trips.
	manifestTimeout = 60 * time.Second

	timeoutMessage = "operation timed out"
)

// Server is the agent HTTP server.
type Server struct {
	cfg    *config.AgentConfig
	engine docker.Engine
	log    *logging.Logger
	clk    clock.Clock
	mux    *http.ServeMux
	server *http.Server
	sem    chan struct{}
}

// NewServer creates a Server ready to serve.
func NewServer(cfg *config.AgentConfig, engine docker.Engine, log *logging.Logger, clk clock.Clock) *Server {
	s := &Server{
		cfg:    cfg,
		engine: engine,
		log:    log,
		clk:    clk,
		mux:    http.NewServeMux(),
		sem:    make(chan struct{}, cfg.Workers),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Health is the only unsigned endpoint.
	s.mux.HandleFunc("GET /api/public/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/public/access", s.signed(s.handleAccess))

	s.mux.HandleFunc("POST /api/container/list", s.signed(s.handleContainerList))
	s.mux.HandleFunc("GET /api/container/exists/{ref}", s.signed(s.handleContainerExists))
	s.mux.HandleFunc("GET /api/container/inspect/{ref}", s.signed(s.handleContainerInspect))
	s.mux.HandleFunc("POST /api/container/create", s.signed(s.handleContainerCreate))
	s.mux.HandleFunc("POST /api/container/start/{ref}", s.signed(s.lifecycle(docker.Engine.StartContainer)))
	s.mux.HandleFunc("POST /api/container/stop/{ref}", s.signed(s.lifecycle(docker.Engine.StopContainer)))
	s.mux.HandleFunc("POST /api/container/restart/{ref}", s.signed(s.lifecycle(docker.Engine.RestartContainer)))
	s.mux.HandleFunc("POST /api/container/kill/{ref}", s.signed(s.lifecycle(docker.Engine.KillContainer)))
	s.mux.HandleFunc("POST /api/container/pause/{ref}", s.signed(s.lifecycle(docker.Engine.PauseContainer)))
	s.mux.HandleFunc("POST /api/container/unpause/{ref}", s.signed(s.lifecycle(docker.Engine.UnpauseContainer)))
	s.mux.HandleFunc("DELETE /api/container/remove/{ref}", s.signed(s.lifecycle(docker.Engine.RemoveContainer)))

	s.mux.HandleFunc("POST /api/image/list", s.signed(s.handleImageList))
	s.mux.HandleFunc("GET /api/image/inspect", s.signed(s.handleImageInspect))
	s.mux.HandleFunc("POST /api/image/pull", s.signed(s.handleImagePull))
	s.mux.HandleFunc("POST /api/image/tag", s.signed(s.handleImageTag))
	s.mux.HandleFunc("POST /api/image/prune", s.signed(s.handleImagePrune))

	s.mux.HandleFunc("GET /api/manifest/inspect", s.signed(s.handleManifestInspect))
	s.mux.HandleFunc("POST /api/command/run", s.signed(s.handleCommandRun))
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: heavyTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.log.Info("agent listening", "addr", s.cfg.Addr, "workers", s.cfg.Workers)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// signed wraps a handler with signature verification. The body is buffered
// so the handler can decode it again after verification.
func (s *Server) signed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		err = signing.Verify(s.cfg.Secret, s.cfg.SignatureTTL, r.Method, r.URL.Path, body,
			r.Header.Get(signing.HeaderTimestamp), r.Header.Get(signing.HeaderSignature), s.clk.Now())
		if err != nil {
			s.log.Warn("rejected request", "path", r.URL.Path, "err", err)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h(w, r)
	}
}

// withEngine runs fn on the bounded worker pool with the given timeout and
// writes the result. Engine failures map to 424, missing objects to 404 and
// deadline hits to 500 with a fixed message.
func (s *Server) withEngine(w http.ResponseWriter, r *http.Request, timeout time.Duration, fn func(ctx context.Context) (any, error)) {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-r.Context().Done():
		writeError(w, http.StatusInternalServerError, timeoutMessage)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	v, err := fn(ctx)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Error("engine call timed out", "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, timeoutMessage)
	case docker.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("engine call failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusFailedDependency, err.Error())
	}
}

// decodeJSON decodes the request body into v. An empty body leaves v at its
// zero value.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeJSON encodes v as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the JSON error envelope.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, api.ErrorResponse{Detail: detail})
}
