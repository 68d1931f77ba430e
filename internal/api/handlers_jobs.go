package api

import (
	"net/http"

	"github.com/stump/stump/internal/apperr"
	"github.com/stump/stump/internal/httputil"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobRepo.ListRecent(50)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	job, err := s.jobRepo.GetByID(id)
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindNotFound, "job not found", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, job)
}
