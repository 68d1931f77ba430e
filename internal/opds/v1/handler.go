package v1

import (
	"bytes"
	"encoding/xml"
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

// Handler serves the OPDS 1.2 catalog. It holds direct repository handles
// rather than the whole api.Server to keep this package importable by
// api without an import cycle.
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

func (h *Handler) writeFeed(w http.ResponseWriter, feed *Feed) {
	w.Header().Set("Content-Type", "application/atom+xml;charset=utf-8")
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	enc.Encode(feed)
}

// apiKeyFromPath mirrors auth.extractAPIKeyFromPath's segment parsing so
// generated links carry the same key prefix the inbound request used —
// not exported from internal/auth, so duplicated here deliberately rather
// than introducing a cross-package dependency for one string split.
func apiKeyFromPath(r *http.Request) string {
	const prefix = "/opds/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 0 || parts[0] == "" || parts[0] == "v1.2" {
		return ""
	}
	return parts[0]
}

func (h *Handler) finalizer(r *http.Request) *opds.LinkFinalizer {
	return opds.NewLinkFinalizer(r, apiKeyFromPath(r))
}

func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	h.writeFeed(w, CatalogFeed(h.finalizer(r)))
}

func (h *Handler) ListLibraries(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	libs, err := h.Libraries.ListForUser(user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeFeed(w, LibrariesFeed(h.finalizer(r), libs))
}

func (h *Handler) Library(w http.ResponseWriter, r *http.Request) {
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
	all, err := h.Series.ListForUser(user, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	page, _, _ := opds.PageParams(r)
	h.writeFeed(w, LibrarySeriesFeed(h.finalizer(r), lib, all, page))
}

// allVisibleSeries aggregates ListForUser across every library the user
// can see — the schema has no single-query "all series" index, so this
// composes per-library results in memory (the catalog scale is
// small enough that this is the right tradeoff over a cross-library join).
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

func (h *Handler) AllSeries(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	all, err := h.allVisibleSeries(user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	page, _, _ := opds.PageParams(r)
	h.writeFeed(w, AllSeriesFeed(h.finalizer(r), all, page))
}

func (h *Handler) LatestSeries(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	all, err := h.allVisibleSeries(user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	page, _, _ := opds.PageParams(r)
	h.writeFeed(w, AllSeriesFeed(h.finalizer(r), all, page))
}

func (h *Handler) SeriesDetail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid series id", http.StatusBadRequest)
		return
	}
	s, err := h.Series.GetByID(id)
	if err != nil {
		http.Error(w, "series not found", http.StatusNotFound)
		return
	}
	media, err := h.Media.ListBySeries(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	page, _, _ := opds.PageParams(r)
	h.writeFeed(w, SeriesDetailFeed(h.finalizer(r), s, media, page))
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	query := r.URL.Query().Get("query")
	results, err := h.Media.FindForUser(user, opds.SearchCondition(query), 50, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeFeed(w, SearchFeed(h.finalizer(r), query, results))
}

func (h *Handler) KeepReading(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	active, err := h.Sessions.ListActiveByUser(r.Context(), user.ID, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	media := make([]*models.Media, 0, len(active))
	for _, a := range active {
		m, err := h.Media.GetByID(a.MediaID)
		if err == nil {
			media = append(media, m)
		}
	}
	h.writeFeed(w, KeepReadingFeed(h.finalizer(r), media))
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

// Thumbnail serves the book's first page, transcoding it to JPEG when its
// native content type isn't one of the three OPDS readers accept directly
// — processor.IsOPDSThumbnailSafe marks that boundary.
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
	fmt.Sscanf(r.PathValue("page"), "%d", &pageNum)
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
