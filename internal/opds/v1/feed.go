package v1

import (
	"fmt"
	"time"

	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/opds"
)

func atomTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func libraryEntry(f *opds.LinkFinalizer, lib *models.Library) Entry {
	return Entry{
		ID:      "urn:stump:library:" + lib.ID.String(),
		Title:   lib.Name,
		Updated: atomTime(lib.UpdatedAt),
		Links: []Link{
			{Rel: "subsection", Type: typeNavigation, Href: f.Absolute(fmt.Sprintf("/opds/v1.2/libraries/%s", lib.ID))},
		},
	}
}

func seriesEntry(f *opds.LinkFinalizer, s *models.Series) Entry {
	return Entry{
		ID:      "urn:stump:series:" + s.ID.String(),
		Title:   s.Name,
		Updated: atomTime(s.UpdatedAt),
		Links: []Link{
			{Rel: "subsection", Type: typeAcquisition, Href: f.Absolute(fmt.Sprintf("/opds/v1.2/series/%s", s.ID))},
		},
	}
}

// bookEntry is the acquisition entry for one Media: a download link and a
// thumbnail link (always present; the thumbnail endpoint transcodes the
// first page to JPEG when its type isn't one OPDS readers accept). No
// page-stream link is emitted.
func bookEntry(f *opds.LinkFinalizer, m *models.Media) Entry {
	e := Entry{
		ID:      "urn:stump:media:" + m.ID.String(),
		Title:   m.Name,
		Updated: atomTime(m.UpdatedAt),
		Links: []Link{
			{
				Rel:  relAcquisition,
				Type: "application/octet-stream",
				Href: f.Absolute(fmt.Sprintf("/opds/v1.2/books/%s/file/%s", m.ID, m.Name)),
			},
			{
				Rel:  relThumbnail,
				Type: "image/jpeg",
				Href: f.Absolute(fmt.Sprintf("/opds/v1.2/books/%s/thumbnail", m.ID)),
			},
		},
	}
	if m.Metadata != nil && m.Metadata.Summary != nil {
		e.Content = &Content{Type: "text", Body: *m.Metadata.Summary}
	}
	return e
}

func paginationLinks(f *opds.LinkFinalizer, basePath string, page, total int) []Link {
	links := []Link{
		{Rel: "self", Type: typeAcquisition, Href: f.Absolute(fmt.Sprintf("%s?page=%d", basePath, page))},
		{Rel: "start", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/catalog")},
	}
	if page > 0 {
		links = append(links, Link{Rel: "prev", Type: typeAcquisition, Href: f.Absolute(fmt.Sprintf("%s?page=%d", basePath, page-1))})
	}
	if (page+1)*opds.PageSize < total {
		links = append(links, Link{Rel: "next", Type: typeAcquisition, Href: f.Absolute(fmt.Sprintf("%s?page=%d", basePath, page+1))})
	}
	return links
}

func paginate(items []*models.Media, offset, limit int) []*models.Media {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func paginateSeries(items []*models.Series, offset, limit int) []*models.Series {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// CatalogFeed is the root navigation feed: links out to libraries,
// all-series, latest-series, keep-reading, and search.
func CatalogFeed(f *opds.LinkFinalizer) *Feed {
	feed := newFeed("urn:stump:catalog", "Stump", atomTime(time.Now()))
	feed.Links = []Link{
		{Rel: "self", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/catalog")},
		{Rel: "start", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/catalog")},
		{Rel: "search", Type: "application/opensearchdescription+xml", Href: f.Absolute("/opds/v1.2/search")},
	}
	feed.Entries = []Entry{
		{ID: "urn:stump:nav:libraries", Title: "Libraries", Updated: feed.Updated,
			Links: []Link{{Rel: "subsection", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/libraries")}}},
		{ID: "urn:stump:nav:series", Title: "All Series", Updated: feed.Updated,
			Links: []Link{{Rel: "subsection", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/series")}}},
		{ID: "urn:stump:nav:series-latest", Title: "Latest Series", Updated: feed.Updated,
			Links: []Link{{Rel: "subsection", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/series/latest")}}},
		{ID: "urn:stump:nav:keep-reading", Title: "Keep Reading", Updated: feed.Updated,
			Links: []Link{{Rel: "subsection", Type: typeAcquisition, Href: f.Absolute("/opds/v1.2/keep-reading")}}},
	}
	return feed
}

func LibrariesFeed(f *opds.LinkFinalizer, libs []*models.Library) *Feed {
	feed := newFeed("urn:stump:libraries", "Libraries", atomTime(time.Now()))
	feed.Links = []Link{
		{Rel: "self", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/libraries")},
		{Rel: "up", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/catalog")},
	}
	for _, l := range libs {
		feed.Entries = append(feed.Entries, libraryEntry(f, l))
	}
	return feed
}

func LibrarySeriesFeed(f *opds.LinkFinalizer, lib *models.Library, all []*models.Series, page int) *Feed {
	feed := newFeed("urn:stump:library:"+lib.ID.String(), lib.Name, atomTime(time.Now()))
	base := fmt.Sprintf("/opds/v1.2/libraries/%s", lib.ID)
	feed.Links = append([]Link{{Rel: "up", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/libraries")}},
		paginationLinks(f, base, page, len(all))...)
	for _, s := range paginateSeries(all, page*opds.PageSize, opds.PageSize) {
		feed.Entries = append(feed.Entries, seriesEntry(f, s))
	}
	return feed
}

func AllSeriesFeed(f *opds.LinkFinalizer, all []*models.Series, page int) *Feed {
	feed := newFeed("urn:stump:series", "All Series", atomTime(time.Now()))
	feed.Links = append([]Link{{Rel: "up", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/catalog")}},
		paginationLinks(f, "/opds/v1.2/series", page, len(all))...)
	for _, s := range paginateSeries(all, page*opds.PageSize, opds.PageSize) {
		feed.Entries = append(feed.Entries, seriesEntry(f, s))
	}
	return feed
}

func SeriesDetailFeed(f *opds.LinkFinalizer, s *models.Series, all []*models.Media, page int) *Feed {
	feed := newFeed("urn:stump:series:"+s.ID.String(), s.Name, atomTime(time.Now()))
	base := fmt.Sprintf("/opds/v1.2/series/%s", s.ID)
	feed.Links = append([]Link{{Rel: "up", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/series")}},
		paginationLinks(f, base, page, len(all))...)
	for _, m := range paginate(all, page*opds.PageSize, opds.PageSize) {
		feed.Entries = append(feed.Entries, bookEntry(f, m))
	}
	return feed
}

func SearchFeed(f *opds.LinkFinalizer, query string, results []*models.Media) *Feed {
	feed := newFeed("urn:stump:search:"+query, "Search: "+query, atomTime(time.Now()))
	feed.Links = []Link{
		{Rel: "self", Type: typeAcquisition, Href: f.Absolute("/opds/v1.2/search?query=" + query)},
		{Rel: "start", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/catalog")},
	}
	for _, m := range results {
		feed.Entries = append(feed.Entries, bookEntry(f, m))
	}
	return feed
}

// KeepReadingFeed lists each active reading session's media, newest first.
func KeepReadingFeed(f *opds.LinkFinalizer, media []*models.Media) *Feed {
	feed := newFeed("urn:stump:keep-reading", "Keep Reading", atomTime(time.Now()))
	feed.Links = []Link{
		{Rel: "self", Type: typeAcquisition, Href: f.Absolute("/opds/v1.2/keep-reading")},
		{Rel: "up", Type: typeNavigation, Href: f.Absolute("/opds/v1.2/catalog")},
	}
	for _, m := range media {
		feed.Entries = append(feed.Entries, bookEntry(f, m))
	}
	return feed
}
