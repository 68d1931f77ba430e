// Package v1 implements the OPDS 1.2 catalog: Atom/XML
// feeds under /opds/v1.2/... (and the API-key-prefixed
// /opds/{api_key}/v1.2/... alias), paginated PageSize at a time.
package v1

import "encoding/xml"

// Feed is a minimal OPDS 1.2 Atom feed: enough elements for a catalog,
// navigation, or acquisition feed, never the full Atom schema.
type Feed struct {
	XMLName  xml.Name  `xml:"feed"`
	Xmlns    string    `xml:"xmlns,attr"`
	XmlnsOPDS string   `xml:"xmlns:opds,attr"`
	ID       string    `xml:"id"`
	Title    string    `xml:"title"`
	Updated  string    `xml:"updated"`
	Author   *Author   `xml:"author,omitempty"`
	Links    []Link    `xml:"link"`
	Entries  []Entry   `xml:"entry"`
}

type Author struct {
	Name string `xml:"name"`
}

// Link rel values this package emits: "self", "start", "up", "next",
// "prev", "search", "subsection", "http://opds-spec.org/acquisition",
// "http://opds-spec.org/image/thumbnail".
type Link struct {
	Rel      string `xml:"rel,attr"`
	Href     string `xml:"href,attr"`
	Type     string `xml:"type,attr"`
	Title    string `xml:"title,attr,omitempty"`
}

type Entry struct {
	ID       string    `xml:"id"`
	Title    string    `xml:"title"`
	Updated  string    `xml:"updated"`
	Content  *Content  `xml:"content,omitempty"`
	Links    []Link    `xml:"link"`
}

type Content struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

const (
	nsAtom = "http://www.w3.org/2005/Atom"
	nsOPDS = "http://opds-spec.org/2010/catalog"

	typeNavigation   = `application/atom+xml;profile=opds-catalog;kind=navigation`
	typeAcquisition  = `application/atom+xml;profile=opds-catalog;kind=acquisition`
	relAcquisition   = "http://opds-spec.org/acquisition"
	relThumbnail     = "http://opds-spec.org/image/thumbnail"
	relImage         = "http://opds-spec.org/image"
)

func newFeed(id, title, updated string) *Feed {
	return &Feed{
		Xmlns:     nsAtom,
		XmlnsOPDS: nsOPDS,
		ID:        id,
		Title:     title,
		Updated:   updated,
	}
}
