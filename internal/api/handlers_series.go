package api

import (
	"net/http"

	"github.com/stump/stump/internal/apperr"
	"github.com/stump/stump/internal/httputil"
)

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	series, err := s.series.GetByID(id)
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindNotFound, "series not found", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, series)
}

func (s *Server) handleListMediaBySeries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	media, err := s.media.ListBySeries(id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, media)
}
