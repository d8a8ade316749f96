// Package web is the controller's operator API: progress polling, manual
// run triggers, host and policy management, and Prometheus metrics. It is
// meant to sit behind the operator's own network perimeter and carries no
// authentication of its own.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quenary/tugtainer/internal/api"
	"github.com/quenary/tugtainer/internal/engine"
	"github.com/quenary/tugtainer/internal/hostreg"
	"github.com/quenary/tugtainer/internal/logging"
	"github.com/quenary/tugtainer/internal/progress"
	"github.com/quenary/tugtainer/internal/store"
)

// Server is the operator HTTP server.
type Server struct {
	store  *store.Store
	cache  *progress.Cache
	reg    *hostreg.Registry
	engine *engine.Engine
	log    *logging.Logger
	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates a Server ready to serve.
func NewServer(st *store.Store, cache *progress.Cache, reg *hostreg.Registry, eng *engine.Engine, log *logging.Logger) *Server {
	s := &Server{
		store:  st,
		cache:  cache,
		reg:    reg,
		engine: eng,
		log:    log.With("component", "web"),
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /api/progress", s.handleProgressAll)
	s.mux.HandleFunc("GET /api/progress/host/{id}", s.handleProgressHost)
	s.mux.HandleFunc("GET /api/progress/host/{id}/group/{name}", s.handleProgressGroup)

	s.mux.HandleFunc("POST /api/check/all", s.handleCheckAll)
	s.mux.HandleFunc("POST /api/check/host/{id}", s.handleCheckHost)
	s.mux.HandleFunc("POST /api/check/host/{id}/container/{name}", s.handleCheckContainer)

	s.mux.HandleFunc("GET /api/hosts", s.handleHostList)
	s.mux.HandleFunc("POST /api/hosts", s.handleHostCreate)
	s.mux.HandleFunc("GET /api/hosts/{id}", s.handleHostGet)
	s.mux.HandleFunc("PUT /api/hosts/{id}", s.handleHostUpdate)
	s.mux.HandleFunc("DELETE /api/hosts/{id}", s.handleHostDelete)

	s.mux.HandleFunc("GET /api/hosts/{id}/containers", s.handleContainerList)
	s.mux.HandleFunc("PATCH /api/hosts/{id}/containers/{name}", s.handleContainerPatch)
	s.mux.HandleFunc("DELETE /api/hosts/{id}/containers/{name}", s.handleContainerDelete)
}

// ListenAndServe starts the HTTP server on the given port.
func (s *Server) ListenAndServe(port string) error {
	s.server = &http.Server{
		Addr:        net.JoinHostPort("", port),
		Handler:     s.mux,
		ReadTimeout: 30 * time.Second,
		// Synchronous container triggers can span pulls and health waits.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	s.log.Info("operator api listening", "port", port)
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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// hostFromPath resolves the {id} path value to a stored host. A nil return
// means the response has already been written.
func (s *Server) hostFromPath(w http.ResponseWriter, r *http.Request) *store.Host {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "host id must be an integer")
		return nil
	}
	host, err := s.store.GetHost(id)
	if err != nil {
		s.log.Error("failed to load host", "host_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load host")
		return nil
	}
	if host == nil {
		writeError(w, http.StatusNotFound, "host not found")
		return nil
	}
	return host
}

func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, api.ErrorResponse{Detail: detail})
}
