package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/quenary/tugtainer/internal/hostclient"
	"github.com/quenary/tugtainer/internal/store"
)

// masked strips the shared secret before a host leaves the API.
func masked(h store.Host) store.Host {
	h.Secret = ""
	return h
}

// syncRegistry aligns the host's registry client with its stored state.
// Enabled hosts get a fresh client so URL, secret and timeout changes take
// effect immediately; disabled hosts lose theirs.
func (s *Server) syncRegistry(h store.Host) {
	if !h.Enabled {
		s.reg.Remove(h.ID)
		return
	}
	timeout := hostclient.DefaultTimeout
	if h.TimeoutS > 0 {
		timeout = time.Duration(h.TimeoutS) * time.Second
	}
	s.reg.Set(h.ID, h.URL, h.Secret, timeout)
}

func validateHost(h *store.Host) string {
	switch {
	case strings.TrimSpace(h.Name) == "":
		return "name must not be empty"
	case strings.TrimSpace(h.URL) == "":
		return "url must not be empty"
	case h.Secret == "":
		return "secret must not be empty"
	}
	return ""
}

func (s *Server) handleHostList(w http.ResponseWriter, _ *http.Request) {
	hosts, err := s.store.ListHosts()
	if err != nil {
		s.log.Error("failed to list hosts", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list hosts")
		return
	}
	out := make([]store.Host, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, masked(h))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHostGet(w http.ResponseWriter, r *http.Request) {
	host := s.hostFromPath(w, r)
	if host == nil {
		return
	}
	writeJSON(w, http.StatusOK, masked(*host))
}

func (s *Server) handleHostCreate(w http.ResponseWriter, r *http.Request) {
	var h store.Host
	if err := decodeJSON(r, &h); err != nil {
		writeError(w, http.StatusBadRequest, "invalid host body")
		return
	}
	if msg := validateHost(&h); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if err := s.store.CreateHost(&h); err != nil {
		s.log.Error("failed to create host", "name", h.Name, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create host")
		return
	}
	s.syncRegistry(h)
	s.log.Info("host created", "host", h.Name, "host_id", h.ID, "enabled", h.Enabled)
	writeJSON(w, http.StatusCreated, masked(h))
}

func (s *Server) handleHostUpdate(w http.ResponseWriter, r *http.Request) {
	existing := s.hostFromPath(w, r)
	if existing == nil {
		return
	}

	h := *existing
	if err := decodeJSON(r, &h); err != nil {
		writeError(w, http.StatusBadRequest, "invalid host body")
		return
	}
	h.ID = existing.ID
	h.CreatedAt = existing.CreatedAt
	// GET masks the secret, so an empty secret in a PUT means "keep it".
	if h.Secret == "" {
		h.Secret = existing.Secret
	}
	if msg := validateHost(&h); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if err := s.store.UpdateHost(&h); err != nil {
		s.log.Error("failed to update host", "host_id", h.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to update host")
		return
	}
	s.syncRegistry(h)
	writeJSON(w, http.StatusOK, masked(h))
}

func (s *Server) handleHostDelete(w http.ResponseWriter, r *http.Request) {
	host := s.hostFromPath(w, r)
	if host == nil {
		return
	}
	if err := s.store.DeleteHost(host.ID); err != nil {
		s.log.Error("failed to delete host", "host_id", host.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete host")
		return
	}
	s.reg.Remove(host.ID)
	s.log.Info("host deleted", "host", host.Name, "host_id", host.ID)
	w.WriteHeader(http.StatusNoContent)
}

// containerPolicyBody is the PATCH body of a policy write. Absent fields
// leave the stored flags untouched.
type containerPolicyBody struct {
	CheckEnabled  *bool `json:"check_enabled"`
	UpdateEnabled *bool `json:"update_enabled"`
}

func (s *Server) handleContainerList(w http.ResponseWriter, r *http.Request) {
	host := s.hostFromPath(w, r)
	if host == nil {
		return
	}
	rows, err := s.store.HostContainers(host.ID)
	if err != nil {
		s.log.Error("failed to list container rows", "host_id", host.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list containers")
		return
	}
	if rows == nil {
		rows = []store.ContainerRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleContainerPatch writes policy flags for a container. The row is
// created on first write; the engine fills in digest state on the next run.
func (s *Server) handleContainerPatch(w http.ResponseWriter, r *http.Request) {
	host := s.hostFromPath(w, r)
	if host == nil {
		return
	}
	name := r.PathValue("name")

	var body containerPolicyBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid policy body")
		return
	}
	patch := store.ContainerPatch{
		CheckEnabled:  body.CheckEnabled,
		UpdateEnabled: body.UpdateEnabled,
	}
	if err := s.store.UpsertContainer(host.ID, name, patch); err != nil {
		s.log.Error("failed to write policy", "host_id", host.ID, "container", name, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to write policy")
		return
	}
	row, err := s.store.GetContainer(host.ID, name)
	if err != nil || row == nil {
		s.log.Error("failed to reload row", "host_id", host.ID, "container", name, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to reload row")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleContainerDelete(w http.ResponseWriter, r *http.Request) {
	host := s.hostFromPath(w, r)
	if host == nil {
		return
	}
	name := r.PathValue("name")
	if err := s.store.DeleteContainer(host.ID, name); err != nil {
		s.log.Error("failed to delete row", "host_id", host.ID, "container", name, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete row")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
