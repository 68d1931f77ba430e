package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/stump/stump/internal/apperr"
	"github.com/stump/stump/internal/auth"
	"github.com/stump/stump/internal/httputil"
	"github.com/stump/stump/internal/jobs"
	"github.com/stump/stump/internal/models"
)

func (s *Server) handleListLibraries(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	libs, err := s.libraries.ListForUser(user)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, libs)
}

type createLibraryRequest struct {
	Name   string               `json:"name"`
	Path   string               `json:"path"`
	Emoji  *string              `json:"emoji,omitempty"`
	Config models.LibraryConfig `json:"config"`
}

func (s *Server) handleCreateLibrary(w http.ResponseWriter, r *http.Request) {
	var req createLibraryRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if req.Name == "" || req.Path == "" {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "name and path are required")
		return
	}
	lib := &models.Library{
		ID:     uuid.New(),
		Name:   req.Name,
		Path:   req.Path,
		Status: models.LibraryStatusReady,
		Emoji:  req.Emoji,
		Config: req.Config,
	}
	if err := s.libraries.Create(lib); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	s.refreshWatcher()
	httputil.WriteJSON(w, http.StatusCreated, lib)
}

func (s *Server) handleGetLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	lib, err := s.libraries.GetByID(id)
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindNotFound, "library not found", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lib)
}

func (s *Server) handleUpdateLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	lib, err := s.libraries.GetByID(id)
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindNotFound, "library not found", err))
		return
	}
	var req createLibraryRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	lib.Name = req.Name
	lib.Path = req.Path
	lib.Emoji = req.Emoji
	lib.Config = req.Config
	if err := s.libraries.Update(lib); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	s.refreshWatcher()
	httputil.WriteJSON(w, http.StatusOK, lib)
}

func (s *Server) handleDeleteLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := s.libraries.Delete(id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	s.refreshWatcher()
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleScanLibrary creates the Job row for a Library Scan Job and
// enqueues it via the asynq-backed Queue, returning the new job's ID
// immediately rather than waiting on the scan itself.
func (s *Server) handleScanLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.libraries.GetByID(id); err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindNotFound, "library not found", err))
		return
	}

	var opts models.ScanOptions
	_ = httputil.ReadJSON(r, &opts)

	jobID := uuid.New()
	job := &models.Job{ID: jobID, Name: "scan_library:" + id.String(), Status: models.JobQueued}
	if err := s.jobRepo.Create(job); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	payload := map[string]interface{}{"job_id": jobID.String(), "library_id": id.String(), "options": opts}
	if _, err := s.queue.EnqueueUnique(jobs.TaskScanLibrary, payload, "scan:"+id.String()); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID.String()})
}

func (s *Server) handleLibraryScanHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	recs, err := s.scanRecs.ListByLibrary(id, 20)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recs)
}

func (s *Server) handleListSeries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	user := auth.UserFromContext(r.Context())
	list, err := s.series.ListForUser(user, id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}
