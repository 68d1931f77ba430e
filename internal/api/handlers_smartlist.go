package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/stump/stump/internal/apperr"
	"github.com/stump/stump/internal/auth"
	"github.com/stump/stump/internal/httputil"
	"github.com/stump/stump/internal/repository"
	"github.com/stump/stump/internal/smartfilter"
)

// mediaSchema maps the subset of Media/Series/Library columns a saved
// Smart List can filter on. Kept narrow and hand-maintained
// rather than reflected, since it doubles as the allowlist of columns a
// caller-supplied filter can ever reach.
var mediaSchema = smartfilter.Schema{
	Columns: map[string]smartfilter.ColumnSpec{
		"name":      {Column: "m.name"},
		"extension": {Column: "m.extension"},
		"status":    {Column: "m.status"},
		"size":      {Column: "m.size"},
		"genre":     {Column: "mm.genre", Nullable: true},
		"year":      {Column: "mm.year", Nullable: true},
		"ageRating": {Column: "mm.age_rating", Nullable: true},
	},
	Relations: map[string]smartfilter.RelationSpec{
		"series": {
			Table:     "series s",
			Correlate: "s.id = m.series_id",
			Schema: smartfilter.Schema{
				Columns: map[string]smartfilter.ColumnSpec{
					"name": {Column: "s.name"},
				},
			},
		},
	},
}

type smartListRequest struct {
	Name   string                 `json:"name"`
	Entity string                 `json:"entity"`
	Filter smartfilter.SmartFilter `json:"filter"`
}

func (s *Server) handleListSmartLists(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	lists, err := s.smartLists.ListByUser(user.ID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lists)
}

func (s *Server) handleCreateSmartList(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	var req smartListRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	filterJSON, err := smartfilter.Marshal(req.Filter)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid filter")
		return
	}
	sl := &repository.SmartList{ID: uuid.New(), UserID: user.ID, Name: req.Name, Entity: req.Entity, FilterJSON: string(filterJSON)}
	if err := s.smartLists.Create(sl); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sl)
}

func (s *Server) handleGetSmartList(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	sl, err := s.smartLists.GetByID(id)
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindNotFound, "smart list not found", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sl)
}

func (s *Server) handleUpdateSmartList(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	sl, err := s.smartLists.GetByID(id)
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindNotFound, "smart list not found", err))
		return
	}
	var req smartListRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	filterJSON, err := smartfilter.Marshal(req.Filter)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid filter")
		return
	}
	sl.Name = req.Name
	sl.Entity = req.Entity
	sl.FilterJSON = string(filterJSON)
	if err := s.smartLists.Update(sl); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sl)
}

func (s *Server) handleDeleteSmartList(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := s.smartLists.Delete(id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleRunSmartList compiles the saved filter and merges it with the
// caller's own access-control condition via access.And — it never runs
// as a second, unrestricted query path around the access composer.
func (s *Server) handleRunSmartList(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	user := auth.UserFromContext(r.Context())
	sl, err := s.smartLists.GetByID(id)
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindNotFound, "smart list not found", err))
		return
	}
	filter, err := smartfilter.Unmarshal([]byte(sl.FilterJSON))
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindBadRequest, "corrupt saved filter", err))
		return
	}
	cond, err := smartfilter.Compile(filter, mediaSchema)
	if err != nil {
		httputil.WriteAppError(w, apperr.Wrap(apperr.KindBadRequest, "could not compile filter", err))
		return
	}
	results, err := s.media.FindForUser(user, cond, 100, 0)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, results)
}
