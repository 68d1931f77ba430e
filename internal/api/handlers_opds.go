package api

import (
	opdsv1 "github.com/stump/stump/internal/opds/v1"
	opdsv2 "github.com/stump/stump/internal/opds/v2"
)

// mountOPDS registers the OPDS 1.2 and 2.0 catalogs under both the plain
// "/opds/v{version}/..." form (session cookie/bearer auth) and the
// "/opds/{api_key}/v{version}/..." alias an e-reader bookmarks so it never
// has to log in again — auth.Middleware resolves either form the same way.
func (s *Server) mountOPDS() {
	v1 := opdsv1.New(s.libraries, s.series, s.media, s.sessions)
	v2 := opdsv2.New(s.libraries, s.series, s.media, s.sessions)

	for _, prefix := range []string{"/opds", "/opds/{apiKey}"} {
		s.router.HandleFunc("GET "+prefix+"/v1.2/catalog", s.withAuth(v1.Catalog))
		s.router.HandleFunc("GET "+prefix+"/v1.2/libraries", s.withAuth(v1.ListLibraries))
		s.router.HandleFunc("GET "+prefix+"/v1.2/libraries/{id}", s.withAuth(v1.Library))
		s.router.HandleFunc("GET "+prefix+"/v1.2/series", s.withAuth(v1.AllSeries))
		s.router.HandleFunc("GET "+prefix+"/v1.2/series/latest", s.withAuth(v1.LatestSeries))
		s.router.HandleFunc("GET "+prefix+"/v1.2/series/{id}", s.withAuth(v1.SeriesDetail))
		s.router.HandleFunc("GET "+prefix+"/v1.2/books/{id}/thumbnail", s.withAuth(v1.Thumbnail))
		s.router.HandleFunc("GET "+prefix+"/v1.2/books/{id}/pages/{page}", s.withAuth(v1.Page))
		s.router.HandleFunc("GET "+prefix+"/v1.2/books/{id}/file/{filename}", s.withAuth(v1.File))
		s.router.HandleFunc("GET "+prefix+"/v1.2/search", s.withAuth(v1.Search))
		s.router.HandleFunc("GET "+prefix+"/v1.2/keep-reading", s.withAuth(v1.KeepReading))

		s.router.HandleFunc("GET "+prefix+"/v2.0/auth", v2.Auth)
		s.router.HandleFunc("GET "+prefix+"/v2.0/catalog", s.withAuth(v2.Catalog))
		s.router.HandleFunc("GET "+prefix+"/v2.0/libraries", s.withAuth(v2.ListLibraries))
		s.router.HandleFunc("GET "+prefix+"/v2.0/libraries/{id}/books", s.withAuth(v2.LibraryBooks))
		s.router.HandleFunc("GET "+prefix+"/v2.0/libraries/{id}/books/latest", s.withAuth(v2.LibraryLatest))
		s.router.HandleFunc("GET "+prefix+"/v2.0/series", s.withAuth(v2.ListSeries))
		s.router.HandleFunc("GET "+prefix+"/v2.0/series/{id}", s.withAuth(v2.SeriesBooks))
		s.router.HandleFunc("GET "+prefix+"/v2.0/books/browse", s.withAuth(v2.BooksBrowse))
		s.router.HandleFunc("GET "+prefix+"/v2.0/books/latest", s.withAuth(v2.BooksLatest))
		s.router.HandleFunc("GET "+prefix+"/v2.0/books/keep-reading", s.withAuth(v2.BooksKeepReading))
		s.router.HandleFunc("GET "+prefix+"/v2.0/books/{id}/thumbnail", s.withAuth(v2.Thumbnail))
		s.router.HandleFunc("GET "+prefix+"/v2.0/books/{id}/pages/{page}", s.withAuth(v2.Page))
		s.router.HandleFunc("GET "+prefix+"/v2.0/books/{id}/progression", s.withAuth(v2.Progression))
		s.router.HandleFunc("GET "+prefix+"/v2.0/books/{id}/file", s.withAuth(v2.File))
		s.router.HandleFunc("GET "+prefix+"/v2.0/search", s.withAuth(v2.Search))
	}
}
