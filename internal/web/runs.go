package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/quenary/tugtainer/internal/engine"
	"github.com/quenary/tugtainer/internal/hostclient"
	"github.com/quenary/tugtainer/internal/progress"
)

// progressOrNull writes the cache entry for key, or JSON null when no run
// has touched the key yet.
func (s *Server) progressOrNull(w http.ResponseWriter, key string) {
	entry, ok := s.cache.Get(key)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleProgressAll(w http.ResponseWriter, _ *http.Request) {
	s.progressOrNull(w, progress.AllKey)
}

func (s *Server) handleProgressHost(w http.ResponseWriter, r *http.Request) {
	host := s.hostFromPath(w, r)
	if host == nil {
		return
	}
	s.progressOrNull(w, progress.HostKey(host.ID, host.Name))
}

func (s *Server) handleProgressGroup(w http.ResponseWriter, r *http.Request) {
	host := s.hostFromPath(w, r)
	if host == nil {
		return
	}
	key := progress.GroupKey(progress.HostKey(host.ID, host.Name), r.PathValue("name"))
	s.progressOrNull(w, key)
}

// updateParam reads the update query flag. Triggers default to check-only.
func updateParam(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("update"))
	return err == nil && v
}

// running reports whether key has a run in flight right now. Triggers use
// it to answer 409 up front; the engine's own TryStart stays authoritative
// for overlaps that slip past this check.
func (s *Server) running(key string) bool {
	entry, ok := s.cache.Get(key)
	return ok && !entry.Status.Terminal()
}

func (s *Server) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	if s.running(progress.AllKey) {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	update := updateParam(r)
	go func() {
		if _, err := s.engine.CheckAll(context.Background(), update); err != nil && !errors.Is(err, engine.ErrRunning) {
			s.log.Error("triggered run failed", "scope", "all", "err", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleCheckHost(w http.ResponseWriter, r *http.Request) {
	host := s.hostFromPath(w, r)
	if host == nil {
		return
	}
	if s.running(progress.HostKey(host.ID, host.Name)) {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	update := updateParam(r)
	go func() {
		if _, err := s.engine.CheckHost(context.Background(), *host, update); err != nil && !errors.Is(err, engine.ErrRunning) {
			s.log.Error("triggered run failed", "scope", "host", "host", host.Name, "err", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleCheckContainer runs the group of one container synchronously and
// returns its result. Operators poll the group progress key for long runs.
func (s *Server) handleCheckContainer(w http.ResponseWriter, r *http.Request) {
	host := s.hostFromPath(w, r)
	if host == nil {
		return
	}
	name := r.PathValue("name")

	gr, err := s.engine.CheckContainer(r.Context(), *host, name, updateParam(r))
	switch {
	case errors.Is(err, engine.ErrRunning):
		writeError(w, http.StatusConflict, "a run is already in progress")
	case hostclient.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		s.log.Error("container run failed", "host", host.Name, "container", name, "err", err)
		writeError(w, http.StatusFailedDependency, err.Error())
	default:
		writeJSON(w, http.StatusOK, gr)
	}
}
