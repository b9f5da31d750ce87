package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/logfields"
)

const maxRequestBody = 1 << 20

// BuildRequest is the body of POST /builds.
type BuildRequest struct {
	Key   string         `json:"key"`
	Input map[string]any `json:"input,omitempty"`
}

// BuildAccepted is returned by POST /builds.
type BuildAccepted struct {
	SessionID string `json:"session_id"`
}

var errInvalidBody = errors.ValidationError("invalid request body").Build()

// handleCreateBuild starts a build, or returns the session already serving the key.
func (s *Server) handleCreateBuild(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req BuildRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.Error(w, r, errInvalidBody)
		return
	}

	id, err := s.builds.StartBuild(r.Context(), req.Key, req.Input)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Build accepted", logfields.SessionID(id), logfields.BuildKey(req.Key))

	w.Header().Set("Location", "/builds/"+id)
	s.Success(w, http.StatusAccepted, BuildAccepted{SessionID: id})
}

// handleGetBuild returns the session snapshot.
func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	sess, err := s.builds.GetState(chi.URLParam(r, "id"))
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, sess)
}

// handleCancelBuild cancels a running build and returns its final snapshot.
func (s *Server) handleCancelBuild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.builds.Cancel(id); err != nil {
		s.Error(w, r, err)
		return
	}
	sess, err := s.builds.GetState(id)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, sess)
}

// handleGetArtifact serves the primary document with small assets embedded.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bundle, err := s.builds.GetArtifact(r.Context(), id)
	if err != nil {
		s.Error(w, r, err)
		return
	}

	in := artifact.Inliner{Threshold: s.threshold(), LinkPrefix: "/builds/" + id + "/files/"}
	body, err := in.Render(bundle)
	if err != nil {
		s.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleGetFile serves one file of the bundle as stored.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := chi.URLParam(r, "*")
	if err := artifact.ValidPath(p); err != nil {
		s.Error(w, r, errors.ValidationError("invalid file path").WithContext("path", p).Build())
		return
	}

	bundle, err := s.builds.GetArtifact(r.Context(), id)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	f, ok := bundle.Files[p]
	if !ok {
		s.Error(w, r, artifact.ErrNotFound.WithContext("path", p))
		return
	}

	mt := f.MediaType
	if mt == "" {
		mt = artifact.MediaTypeFor(p)
	}
	w.Header().Set("Content-Type", mt)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Content)
}
