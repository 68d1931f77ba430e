// Package opds implements the OPDS Feed Generator: OPDS 1.2
// Atom/XML feeds under internal/opds/v1 and OPDS 2.0 JSON feeds under
// internal/opds/v2, sharing the link-finalization and pagination rules
// defined here.
package opds

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/stump/stump/internal/access"
)

// PageSize is the fixed OPDS page size used by both feed generators (20 items,
// zero-indexed), for both the v1.2 Atom feed and the v2.0 JSON feed.
const PageSize = 20

// LinkFinalizer rewrites the relative path templates every feed builder
// emits ("/opds/v1.2/libraries/{id}") into absolute URLs scoped to the
// request that asked for the feed, optionally prefixing the caller's API
// key so a client that bookmarked a catalog URL never needs to
// re-authenticate.
type LinkFinalizer struct {
	scheme    string
	host      string
	apiKeyPfx string
}

// NewLinkFinalizer derives scheme/host from r, honoring a reverse proxy's
// X-Forwarded-Proto header. apiKey is empty for a session-authenticated
// request.
func NewLinkFinalizer(r *http.Request, apiKey string) *LinkFinalizer {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	pfx := ""
	if apiKey != "" {
		pfx = "/" + apiKey
	}
	return &LinkFinalizer{scheme: scheme, host: r.Host, apiKeyPfx: pfx}
}

// Absolute rewrites a path beginning with "/opds/" into a fully-qualified
// URL, inserting the API-key path segment right after "/opds" when one is
// configured.
func (f *LinkFinalizer) Absolute(path string) string {
	if f.apiKeyPfx != "" && strings.HasPrefix(path, "/opds/") {
		path = "/opds" + f.apiKeyPfx + strings.TrimPrefix(path, "/opds")
	}
	return f.scheme + "://" + f.host + path
}

// PageParams parses ?page=N (zero-indexed, defaulting to 0) from the
// request's query string, clamping negative input to zero rather than
// erroring — an out-of-range page is an empty result set, not a 400.
func PageParams(r *http.Request) (page, limit, offset int) {
	page = 0
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	return page, PageSize, page * PageSize
}

// SearchCondition builds the media-name LIKE fragment both OPDS versions'
// search endpoints merge with the caller's access condition via
// access.And — an empty query matches everything, the same "no filter"
// behavior the Smart Filter Engine gives an empty group.
func SearchCondition(query string) access.Condition {
	if query == "" {
		return access.True()
	}
	return access.Raw("m.name LIKE ?", "%"+query+"%")
}
