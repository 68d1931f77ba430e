package v2

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/stump/stump/internal/auth"
	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/opds"
	"github.com/stump/stump/internal/processor"
	"github.com/stump/stump/internal/repository"
)

type Handler struct {
	Libraries *repository.LibraryRepository
	Series    *repository.SeriesRepository
	Media     *repository.MediaRepository
	Sessions  *repository.SessionRepository
}

func New(libraries *repository.LibraryRepository, series *repository.SeriesRepository,
	media *repository.MediaRepository, sessions *repository.SessionRepository) *Handler {
	return &Handler{Libraries: libraries, Series: series, Media: media, Sessions: sessions}
}

func apiKeyFromPath(r *http.Request) string {
	const prefix = "/opds/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 0 || parts[0] == "" || parts[0] == "v2.0" {
		return ""
	}
	return parts[0]
}

func (h *Handler) finalizer(r *http.Request) *opds.LinkFinalizer {
	return opds.NewLinkFinalizer(r, apiKeyFromPath(r))
}

func writeJSON(w http.ResponseWriter, ctype string, v interface{}) {
	w.Header().Set("Content-Type", ctype)
	json.NewEncoder(w).Encode(v)
}

// Auth serves the OPDS Authentication Document unauthenticated — a client
// fetches it before it has credentials at all.
func (h *Handler) Auth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, "application/opds-authentication+json", NewAuthDocument(h.finalizer(r)))
}

func (h *Handler) allVisibleSeries(user *models.User) ([]*models.Series, error) {
	libs, err := h.Libraries.ListForUser(user)
	if err != nil {
		return nil, err
	}
	var all []*models.Series
	for _, lib := range libs {
		s, err := h.Series.ListForUser(user, lib.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, s...)
	}
	return all, nil
}

func (h *Handler) latestMedia(user *models.User, limit int) ([]*models.Media, error) {
	series, err := h.allVisibleSeries(user)
	if err != nil {
		return nil, err
	}
	var media []*models.Media
	for _, s := range series {
		m, err := h.Media.ListBySeries(s.ID)
		if err != nil {
			return nil, err
		}
		media = append(media, m...)
	}
	sort.Slice(media, func(i, j int) bool { return media[i].CreatedAt.After(media[j].CreatedAt) })
	if len(media) > limit {
		media = media[:limit]
	}
	return media, nil
}

func (h *Handler) keepReadingMedia(r *http.Request, user *models.User) ([]*models.Media, error) {
	active, err := h.Sessions.ListActiveByUser(r.Context(), user.ID, 20)
	if err != nil {
		return nil, err
	}
	media := make([]*models.Media, 0, len(active))
	for _, a := range active {
		m, err := h.Media.GetByID(a.MediaID)
		if err == nil {
			media = append(media, m)
		}
	}
	return media, nil
}

func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	libs, err := h.Libraries.ListForUser(user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	latest, err := h.latestMedia(user, opds.PageSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	keepReading, err := h.keepReadingMedia(r, user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, "application/opds+json", CatalogFeed(h.finalizer(r), libs, latest, keepReading))
}

func (h *Handler) ListLibraries(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	libs, err := h.Libraries.ListForUser(user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, "application/opds+json", LibrariesFeed(h.finalizer(r), libs))
}

func (h *Handler) LibraryBooks(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid library id", http.StatusBadRequest)
		return
	}
	user := auth.UserFromContext(r.Context())
	lib, err := h.Libraries.GetByID(id)
	if err != nil {
		http.Error(w, "library not found", http.StatusNotFound)
		return
	}
	series, err := h.Series.ListForUser(user, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var all []*models.Media
	for _, s := range series {
		m, err := h.Media.ListBySeries(s.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		all = append(all, m...)
	}
	page, limit, offset := opds.PageParams(r)
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	var pageItems []*models.Media
	if offset < len(all) {
		pageItems = all[offset:end]
	}
	writeJSON(w, "application/opds+json", LibraryBooksFeed(h.finalizer(r), lib, pageItems, page, len(all)))
}

func (h *Handler) LibraryLatest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid library id", http.StatusBadRequest)
		return
	}
	lib, err := h.Libraries.GetByID(id)
	if err != nil {
		http.Error(w, "library not found", http.StatusNotFound)
		return
	}
	user := auth.UserFromContext(r.Context())
	series, err := h.Series.ListForUser(user, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var all []*models.Media
	for _, s := range series {
		m, err := h.Media.ListBySeries(s.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		all = append(all, m...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if len(all) > opds.PageSize {
		all = all[:opds.PageSize]
	}
	writeJSON(w, "application/opds+json", LibraryBooksFeed(h.finalizer(r), lib, all, 0, len(all)))
}

func (h *Handler) ListSeries(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	all, err := h.allVisibleSeries(user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	feed := &Feed{Metadata: Metadata{Title: "Series"}, Links: []Link{{Rel: "self", Href: h.finalizer(r).Absolute("/opds/v2.0/series")}}}
	for _, s := range all {
		feed.Navigation = append(feed.Navigation, NavigationEntry{
			Title: s.Name, Type: "application/opds+json", Href: h.finalizer(r).Absolute("/opds/v2.0/series/" + s.ID.String()),
		})
	}
	writeJSON(w, "application/opds+json", feed)
}

func (h *Handler) SeriesBooks(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid series id", http.StatusBadRequest)
		return
	}
	media, err := h.Media.ListBySeries(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	page, limit, offset := opds.PageParams(r)
	end := offset + limit
	if end > len(media) {
		end = len(media)
	}
	var pageItems []*models.Media
	if offset < len(media) {
		pageItems = media[offset:end]
	}
	writeJSON(w, "application/opds+json", BooksFeed(h.finalizer(r), "Series", "/opds/v2.0/series/"+id.String(), pageItems, page, len(media)))
}

func (h *Handler) BooksBrowse(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	results, err := h.Media.FindForUser(user, opds.SearchCondition(""), opds.PageSize, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, "application/opds+json", BooksFeed(h.finalizer(r), "Browse", "/opds/v2.0/books/browse", results, 0, len(results)))
}

func (h *Handler) BooksLatest(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	latest, err := h.latestMedia(user, opds.PageSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, "application/opds+json", BooksFeed(h.finalizer(r), "Latest Books", "/opds/v2.0/books/latest", latest, 0, len(latest)))
}

func (h *Handler) BooksKeepReading(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	media, err := h.keepReadingMedia(r, user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, "application/opds+json", BooksFeed(h.finalizer(r), "Keep Reading", "/opds/v2.0/books/keep-reading", media, 0, len(media)))
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	query := r.URL.Query().Get("query")
	results, err := h.Media.FindForUser(user, opds.SearchCondition(query), 50, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, "application/opds+json", BooksFeed(h.finalizer(r), "Search: "+query, "/opds/v2.0/search", results, 0, len(results)))
}

func (h *Handler) mediaAndProcessor(id uuid.UUID) (*models.Media, processor.Processor, error) {
	m, err := h.Media.GetByID(id)
	if err != nil {
		return nil, nil, err
	}
	kind := processor.Dispatch("."+strings.TrimPrefix(m.Extension, "."), nil)
	proc, err := processor.For(kind)
	if err != nil {
		return nil, nil, err
	}
	return m, proc, nil
}

func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid media id", http.StatusBadRequest)
		return
	}
	m, proc, err := h.mediaAndProcessor(id)
	if err != nil {
		http.Error(w, "media not found", http.StatusNotFound)
		return
	}
	data, ctype, err := proc.GetPage(m.Path, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if processor.IsOPDSThumbnailSafe(ctype) {
		w.Header().Set("Content-Type", ctype)
		w.Write(data)
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		http.Error(w, "could not decode page for thumbnail", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	jpeg.Encode(w, img, &jpeg.Options{Quality: 85})
}

func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid media id", http.StatusBadRequest)
		return
	}
	var pageNum int
	if _, err := fmt.Sscanf(r.PathValue("page"), "%d", &pageNum); err != nil {
		http.Error(w, "invalid page", http.StatusBadRequest)
		return
	}
	m, proc, err := h.mediaAndProcessor(id)
	if err != nil {
		http.Error(w, "media not found", http.StatusNotFound)
		return
	}
	data, ctype, err := proc.GetPage(m.Path, pageNum)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Write(data)
}

func (h *Handler) Progression(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid media id", http.StatusBadRequest)
		return
	}
	user := auth.UserFromContext(r.Context())
	session, err := h.Sessions.GetActive(r.Context(), user.ID, id)
	if err != nil || session == nil {
		writeJSON(w, "application/vnd.readium.progression+json", map[string]interface{}{
			"modified": nil, "locator": nil,
		})
		return
	}
	locator := map[string]interface{}{}
	if session.Page != nil {
		locator["position"] = *session.Page
	}
	if session.EpubCFI != nil {
		locator["cfi"] = *session.EpubCFI
	}
	writeJSON(w, "application/vnd.readium.progression+json", map[string]interface{}{
		"modified": session.UpdatedAt,
		"locator":  locator,
	})
}

func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid media id", http.StatusBadRequest)
		return
	}
	m, err := h.Media.GetByID(id)
	if err != nil {
		http.Error(w, "media not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+m.Name+`"`)
	http.ServeFile(w, r, m.Path)
}
