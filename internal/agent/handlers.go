package agent

import (
	"context"
	"net/http"

	"github.com/quenary/tugtainer/internal/api"
	"github.com/quenary/tugtainer/internal/docker"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.withEngine(w, r, defaultTimeout, func(ctx context.Context) (any, error) {
		if err := s.engine.Ping(ctx); err != nil {
			return nil, err
		}
		return "OK", nil
	})
}

// handleAccess does nothing on its own; the signature middleware already
// rejected unauthenticated callers.
func (s *Server) handleAccess(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "OK")
}

func (s *Server) handleContainerList(w http.ResponseWriter, r *http.Request) {
	var body api.ContainerListBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.withEngine(w, r, defaultTimeout, func(ctx context.Context) (any, error) {
		return s.engine.ListContainers(ctx, body.All)
	})
}

func (s *Server) handleContainerExists(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	s.withEngine(w, r, defaultTimeout, func(ctx context.Context) (any, error) {
		return s.engine.ContainerExists(ctx, ref)
	})
}

func (s *Server) handleContainerInspect(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	s.withEngine(w, r, defaultTimeout, func(ctx context.Context) (any, error) {
		return s.engine.InspectContainer(ctx, ref)
	})
}

func (s *Server) handleContainerCreate(w http.ResponseWriter, r *http.Request) {
	var body api.CreateContainerBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Name == "" || body.Config == nil {
		writeError(w, http.StatusBadRequest, "name and config are required")
		return
	}
	s.withEngine(w, r, heavyTimeout, func(ctx context.Context) (any, error) {
		return s.engine.CreateContainer(ctx, body)
	})
}

// lifecycle adapts a single-container engine operation into a handler that
// echoes the ref back on success.
func (s *Server) lifecycle(op func(docker.Engine, context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := r.PathValue("ref")
		s.withEngine(w, r, heavyTimeout, func(ctx context.Context) (any, error) {
			if err := op(s.engine, ctx, ref); err != nil {
				return nil, err
			}
			return ref, nil
		})
	}
}

func (s *Server) handleImageList(w http.ResponseWriter, r *http.Request) {
	var body api.ImageListBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.withEngine(w, r, defaultTimeout, func(ctx context.Context) (any, error) {
		return s.engine.ListImages(ctx, body.Filters)
	})
}

func (s *Server) handleImageInspect(w http.ResponseWriter, r *http.Request) {
	var body api.ImageInspectBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.SpecOrID == "" {
		body.SpecOrID = r.URL.Query().Get("spec_or_id")
	}
	s.withEngine(w, r, defaultTimeout, func(ctx context.Context) (any, error) {
		return s.engine.InspectImage(ctx, body.SpecOrID)
	})
}

func (s *Server) handleImagePull(w http.ResponseWriter, r *http.Request) {
	var body api.ImagePullBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Image == "" {
		writeError(w, http.StatusBadRequest, "image is required")
		return
	}
	s.withEngine(w, r, heavyTimeout, func(ctx context.Context) (any, error) {
		return s.engine.PullImage(ctx, body.Image)
	})
}

func (s *Server) handleImageTag(w http.ResponseWriter, r *http.Request) {
	var body api.ImageTagBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.SpecOrID == "" || body.Tag == "" {
		writeError(w, http.StatusBadRequest, "spec_or_id and tag are required")
		return
	}
	s.withEngine(w, r, defaultTimeout, func(ctx context.Context) (any, error) {
		if err := s.engine.TagImage(ctx, body.SpecOrID, body.Tag); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

func (s *Server) handleImagePrune(w http.ResponseWriter, r *http.Request) {
	var body api.ImagePruneBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.withEngine(w, r, heavyTimeout, func(ctx context.Context) (any, error) {
		return s.engine.PruneImages(ctx, body.All)
	})
}

func (s *Server) handleManifestInspect(w http.ResponseWriter, r *http.Request) {
	spec := r.URL.Query().Get("spec_or_digest")
	if spec == "" {
		writeError(w, http.StatusBadRequest, "spec_or_digest is required")
		return
	}
	s.withEngine(w, r, manifestTimeout, func(ctx context.Context) (any, error) {
		return s.engine.InspectManifest(ctx, spec)
	})
}

func (s *Server) handleCommandRun(w http.ResponseWriter, r *http.Request) {
	var body api.CommandRunBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body.Command) == 0 {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}
	s.withEngine(w, r, heavyTimeout, func(ctx context.Context) (any, error) {
		stdout, stderr, err := s.engine.RunCommand(ctx, body.Command)
		if err != nil {
			return nil, err
		}
		return api.CommandRunResult{stdout, stderr}, nil
	})
}
