package api

import (
	"net/http"
	"strconv"

	"github.com/stump/stump/internal/apperr"
	"github.com/stump/stump/internal/auth"
	"github.com/stump/stump/internal/httputil"
	"github.com/stump/stump/internal/processor"
)

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	m, err := s.media.GetByID(id)
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindNotFound, "media not found", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// handleGetMediaPage serves one decoded page image, the surface OPDS v1.2's
// /books/:id/pages/:page and the reader frontend both ultimately share.
func (s *Server) handleGetMediaPage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 0 {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid page index")
		return
	}
	m, err := s.media.GetByID(id)
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindNotFound, "media not found", err))
		return
	}
	proc, err := processor.For(processor.Dispatch("."+m.Extension, nil))
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	data, contentType, err := proc.GetPage(m.Path, page)
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindProcessFileError, "get page", err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleGetMediaFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	m, err := s.media.GetByID(id)
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindNotFound, "media not found", err))
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+m.Name+"."+m.Extension+`"`)
	http.ServeFile(w, r, m.Path)
}

type progressRequest struct {
	Page       *int     `json:"page,omitempty"`
	EpubCFI    *string  `json:"epubcfi,omitempty"`
	Percentage float64  `json:"percentage"`
	Device     *string  `json:"device,omitempty"`
}

func (s *Server) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	user := auth.UserFromContext(r.Context())
	var req progressRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	result, err := s.tracker.UpdateProgress(r.Context(), user.ID, mediaID, req.Page, req.EpubCFI, req.Percentage, req.Device)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleCompleteProgress(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	user := auth.UserFromContext(r.Context())
	finished, err := s.tracker.CompleteSession(r.Context(), user.ID, mediaID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, finished)
}

func (s *Server) handleGetProgressCompletion(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	user := auth.UserFromContext(r.Context())
	completion, err := s.tracker.Completion(r.Context(), user.ID, mediaID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, completion)
}

// handleKeepReading lists the caller's in-progress media, backing both the
// REST surface and OPDS's "Keep Reading" group.
func (s *Server) handleKeepReading(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	active, err := s.sessions.ListActiveByUser(r.Context(), user.ID, 20)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(active))
	for _, a := range active {
		m, err := s.media.GetByID(a.MediaID)
		if err != nil {
			continue
		}
		out = append(out, map[string]interface{}{"session": a, "media": m})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
