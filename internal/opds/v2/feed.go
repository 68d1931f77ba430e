// Package v2 implements the OPDS 2.0 catalog: JSON feeds
// under /opds/v2.0/..., composing navigation groups (libraries, latest
// books, keep reading) into a single JSON response from several
// repository calls.
package v2

import (
	"time"

	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/opds"
)

// Link is an OPDS 2.0 typed link.
type Link struct {
	Rel      string `json:"rel,omitempty"`
	Href     string `json:"href"`
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Metadata is the shared "metadata" object every feed/group/publication carries.
type Metadata struct {
	Title        string `json:"title"`
	NumberOfItems *int   `json:"numberOfItems,omitempty"`
	CurrentPage  *int   `json:"currentPage,omitempty"`
	ItemsPerPage *int   `json:"itemsPerPage,omitempty"`
	Modified     string `json:"modified,omitempty"`
}

// Publication is one book: typed links for self/download/thumbnail
// plus inline descriptive metadata, per OPDS 2.0's Readium Web
// Publication Manifest.
type Publication struct {
	Metadata PubMetadata `json:"metadata"`
	Links    []Link      `json:"links"`
	Images   []Link      `json:"images,omitempty"`
}

type PubMetadata struct {
	Identifier  string   `json:"identifier"`
	Title       string   `json:"title"`
	Author      []string `json:"author,omitempty"`
	Description string   `json:"description,omitempty"`
	Modified    string   `json:"modified,omitempty"`
	NumberOfPages *int   `json:"numberOfPages,omitempty"`
}

// NavigationEntry is one "navigation" link-list item: a library, or a
// subsection like "Latest Books".
type NavigationEntry struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
}

// Group composes one labeled collection inside a feed:
// either a list of Publications (Latest Books, Keep Reading) or a list
// of Navigation links (Libraries, Series).
type Group struct {
	Metadata   Metadata          `json:"metadata"`
	Links      []Link            `json:"links"`
	Navigation []NavigationEntry `json:"navigation,omitempty"`
	Publications []Publication   `json:"publications,omitempty"`
}

// Feed is the root document shape for every non-auth OPDS 2.0 endpoint.
type Feed struct {
	Metadata     Metadata      `json:"metadata"`
	Links        []Link        `json:"links"`
	Navigation   []NavigationEntry `json:"navigation,omitempty"`
	Publications []Publication `json:"publications,omitempty"`
	Groups       []Group       `json:"groups,omitempty"`
}

// AuthDocument is the OPDS Authentication Document served at
// /opds/v2.0/auth (application/opds-authentication+json), advertising
// the server's two supported auth flows.
type AuthDocument struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Authentication []AuthFlow          `json:"authentication"`
}

type AuthFlow struct {
	Type        string            `json:"type"`
	Labels      map[string]string `json:"labels,omitempty"`
}

func isoTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func publicationFor(f *opds.LinkFinalizer, m *models.Media) Publication {
	pub := Publication{
		Metadata: PubMetadata{
			Identifier: m.ID.String(),
			Title:      m.Name,
			Modified:   isoTime(m.UpdatedAt),
		},
		Links: []Link{
			{Rel: "self", Type: "application/opds-publication+json", Href: f.Absolute("/opds/v2.0/books/" + m.ID.String())},
			{Rel: "http://opds-spec.org/acquisition", Type: "application/octet-stream", Href: f.Absolute("/opds/v2.0/books/" + m.ID.String() + "/file")},
			{Rel: "http://opds-spec.org/image/thumbnail", Type: "image/jpeg", Href: f.Absolute("/opds/v2.0/books/" + m.ID.String() + "/thumbnail")},
		},
	}
	if m.Pages > 0 {
		p := m.Pages
		pub.Metadata.NumberOfPages = &p
	}
	if m.Metadata != nil {
		if m.Metadata.Summary != nil {
			pub.Metadata.Description = *m.Metadata.Summary
		}
		pub.Metadata.Author = m.Metadata.Creators
	}
	return pub
}

func CatalogFeed(f *opds.LinkFinalizer, libs []*models.Library, latest, keepReading []*models.Media) *Feed {
	feed := &Feed{
		Metadata: Metadata{Title: "Stump"},
		Links: []Link{
			{Rel: "self", Type: "application/opds+json", Href: f.Absolute("/opds/v2.0/catalog")},
			{Rel: "search", Type: "application/opds+json", Href: f.Absolute("/opds/v2.0/search")},
			{Rel: "http://opds-spec.org/auth/document", Type: "application/opds-authentication+json", Href: f.Absolute("/opds/v2.0/auth")},
		},
	}
	libGroup := Group{Metadata: Metadata{Title: "Libraries"}, Links: []Link{{Rel: "self", Href: f.Absolute("/opds/v2.0/libraries")}}}
	for _, l := range libs {
		libGroup.Navigation = append(libGroup.Navigation, NavigationEntry{
			Title: l.Name, Type: "application/opds+json",
			Href: f.Absolute("/opds/v2.0/libraries/" + l.ID.String()),
		})
	}
	feed.Groups = append(feed.Groups, libGroup)

	latestGroup := Group{Metadata: Metadata{Title: "Latest Books"}, Links: []Link{{Rel: "self", Href: f.Absolute("/opds/v2.0/books/latest")}}}
	for _, m := range latest {
		latestGroup.Publications = append(latestGroup.Publications, publicationFor(f, m))
	}
	feed.Groups = append(feed.Groups, latestGroup)

	if len(keepReading) > 0 {
		krGroup := Group{Metadata: Metadata{Title: "Keep Reading"}, Links: []Link{{Rel: "self", Href: f.Absolute("/opds/v2.0/books/keep-reading")}}}
		for _, m := range keepReading {
			krGroup.Publications = append(krGroup.Publications, publicationFor(f, m))
		}
		feed.Groups = append(feed.Groups, krGroup)
	}
	return feed
}

func LibrariesFeed(f *opds.LinkFinalizer, libs []*models.Library) *Feed {
	feed := &Feed{
		Metadata: Metadata{Title: "Libraries"},
		Links:    []Link{{Rel: "self", Href: f.Absolute("/opds/v2.0/libraries")}, {Rel: "up", Href: f.Absolute("/opds/v2.0/catalog")}},
	}
	for _, l := range libs {
		feed.Navigation = append(feed.Navigation, NavigationEntry{
			Title: l.Name, Type: "application/opds+json", Href: f.Absolute("/opds/v2.0/libraries/" + l.ID.String()),
		})
	}
	return feed
}

func LibraryBooksFeed(f *opds.LinkFinalizer, lib *models.Library, media []*models.Media, page, total int) *Feed {
	cp := page
	ipp := opds.PageSize
	feed := &Feed{
		Metadata: Metadata{Title: lib.Name, NumberOfItems: &total, CurrentPage: &cp, ItemsPerPage: &ipp},
		Links:    paginationLinks(f, "/opds/v2.0/libraries/"+lib.ID.String()+"/books", page, total),
	}
	for _, m := range media {
		feed.Publications = append(feed.Publications, publicationFor(f, m))
	}
	return feed
}

func BooksFeed(f *opds.LinkFinalizer, title, selfPath string, media []*models.Media, page, total int) *Feed {
	feed := &Feed{
		Metadata: Metadata{Title: title},
		Links:    paginationLinks(f, selfPath, page, total),
	}
	for _, m := range media {
		feed.Publications = append(feed.Publications, publicationFor(f, m))
	}
	return feed
}

func paginationLinks(f *opds.LinkFinalizer, basePath string, page, total int) []Link {
	links := []Link{
		{Rel: "self", Href: f.Absolute(basePath), Type: "application/opds+json"},
	}
	if page > 0 {
		links = append(links, Link{Rel: "prev", Href: f.Absolute(basePath)})
	}
	if (page+1)*opds.PageSize < total {
		links = append(links, Link{Rel: "next", Href: f.Absolute(basePath)})
	}
	return links
}

func NewAuthDocument(f *opds.LinkFinalizer) *AuthDocument {
	return &AuthDocument{
		ID:    f.Absolute("/opds/v2.0/auth"),
		Title: "Stump",
		Authentication: []AuthFlow{
			{Type: "http://opds-spec.org/auth/basic", Labels: map[string]string{"login": "Username", "password": "Password"}},
			{Type: "http://opds-spec.org/auth/oauth/implicit", Labels: map[string]string{"login": "API Key"}},
		},
	}
}
