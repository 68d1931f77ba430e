// Package epubmeta implements just enough of the EPUB container format to
// resolve the package document, read its manifest/spine, and apply the
// cover-image heuristic — grounded in how kapmahc/epub walks
// container.xml -> OPF -> manifest/spine, but reimplemented against
// encoding/xml directly so the cover heuristic and resource resolution
// match the rules ported from the original Rust EPUB processor.
package epubmeta

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"io"
	"mime"
	"path"
	"sort"
	"strings"
)

// ErrNoCover is returned when no cover image could be located by any of
// the three fallback strategies.
var ErrNoCover = errors.New("epubmeta: no cover image found")

type container struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Metadata struct {
		Title       []string `xml:"title"`
		Creator     []string `xml:"creator"`
		Description []string `xml:"description"`
		Subject     []string `xml:"subject"`
		Date        []string `xml:"date"`
		Meta        []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID        string `xml:"id,attr"`
			Href      string `xml:"href,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// ManifestItem is one manifest entry, resolved to a path relative to the
// archive root (not the OPF's own directory).
type ManifestItem struct {
	ID        string
	Path      string
	MediaType string
}

// Metadata is the Dublin Core subset extracted from an EPUB.
type Metadata struct {
	Title   string
	Creator []string
	Summary string
	Genre   string
	Year    string
}

// Book is an opened EPUB: the parsed manifest/spine plus a handle on the
// underlying zip so resources can be streamed on demand.
type Book struct {
	zr       *zip.ReadCloser
	opfDir   string
	manifest map[string]ManifestItem
	spine    []string // manifest IDs in reading order
	coverID  string
	Metadata Metadata
}

// acceptedCoverMimes restricts the heuristic's fallback search to formats
// OPDS and the reader UI can actually render as a cover thumbnail.
var acceptedCoverMimes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Open parses an EPUB's container.xml, locates its package document, and
// resolves the manifest, spine, and cover image.
func Open(path_ string) (*Book, error) {
	zr, err := zip.OpenReader(path_)
	if err != nil {
		return nil, err
	}

	rootfile, err := findRootfile(zr)
	if err != nil {
		zr.Close()
		return nil, err
	}

	data, err := readZipEntry(&zr.Reader, rootfile)
	if err != nil {
		zr.Close()
		return nil, err
	}

	var pkg opfPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		zr.Close()
		return nil, err
	}

	opfDir := path.Dir(rootfile)
	if opfDir == "." {
		opfDir = ""
	}

	manifest := make(map[string]ManifestItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		manifest[item.ID] = ManifestItem{
			ID:        item.ID,
			Path:      joinOPFPath(opfDir, item.Href),
			MediaType: item.MediaType,
		}
	}

	spine := make([]string, 0, len(pkg.Spine.ItemRefs))
	for _, ref := range pkg.Spine.ItemRefs {
		if _, ok := manifest[ref.IDRef]; ok {
			spine = append(spine, ref.IDRef)
		}
	}

	b := &Book{
		zr:       zr,
		opfDir:   opfDir,
		manifest: manifest,
		spine:    spine,
		Metadata: extractMetadata(pkg),
	}
	b.coverID = b.resolveCoverID(pkg)
	return b, nil
}

func (b *Book) Close() error { return b.zr.Close() }

// PageCount is 1 (the cover) plus the number of spine entries.
func (b *Book) PageCount() int { return 1 + len(b.spine) }

// GetPage returns a page by its 0-indexed position: index 0 is always the
// cover, subsequent indexes walk the spine in reading order.
func (b *Book) GetPage(index int) ([]byte, string, error) {
	if index < 0 || index >= b.PageCount() {
		return nil, "", errors.New("epubmeta: page index out of range")
	}
	if index == 0 {
		return b.GetCover()
	}
	item, ok := b.manifest[b.spine[index-1]]
	if !ok {
		return nil, "", errors.New("epubmeta: spine item missing from manifest")
	}
	data, err := readZipEntry(&b.zr.Reader, item.Path)
	if err != nil {
		return nil, "", err
	}
	return data, item.MediaType, nil
}

// GetPageContentTypes reports each page's content type from the manifest
// without reading any entry bodies. The cover's type is empty when no
// cover was resolved.
func (b *Book) GetPageContentTypes() ([]string, error) {
	types := make([]string, b.PageCount())
	if b.coverID != "" {
		if item, ok := b.manifest[b.coverID]; ok {
			types[0] = item.MediaType
		}
	}
	for i, id := range b.spine {
		types[i+1] = b.manifest[id].MediaType
	}
	return types, nil
}

// GetCover returns the cover image bytes and mime type, resolved via (in
// order): explicit cover metadata, a manifest item with id "cover", or
// the weighted filename heuristic ported from the original Rust
// implementation's get_cover_path.
func (b *Book) GetCover() ([]byte, string, error) {
	if b.coverID != "" {
		if item, ok := b.manifest[b.coverID]; ok {
			data, err := readZipEntry(&b.zr.Reader, item.Path)
			if err != nil {
				return nil, "", err
			}
			return data, item.MediaType, nil
		}
	}
	return nil, "", ErrNoCover
}

// GetResourceByID returns an arbitrary manifest resource, used to resolve
// images/stylesheets referenced from chapter HTML.
func (b *Book) GetResourceByID(id string) ([]byte, string, error) {
	item, ok := b.manifest[id]
	if !ok {
		return nil, "", errors.New("epubmeta: unknown resource id")
	}
	data, err := readZipEntry(&b.zr.Reader, item.Path)
	if err != nil {
		return nil, "", err
	}
	return data, item.MediaType, nil
}

// GetResourceByPath resolves a path relative to the OPF's directory
// (handling "../" segments) and returns its bytes plus mime type, falling
// back to extension-based sniffing if the manifest carries no explicit
// entry for it — the container.xml/package.opf root files themselves
// aren't manifest entries.
func (b *Book) GetResourceByPath(resourcePath string) ([]byte, string, error) {
	resolved := normalizeResourcePath(resourcePath, b.opfDir)
	for _, item := range b.manifest {
		if item.Path == resolved {
			data, err := readZipEntry(&b.zr.Reader, resolved)
			if err != nil {
				return nil, "", err
			}
			return data, item.MediaType, nil
		}
	}
	data, err := readZipEntry(&b.zr.Reader, resolved)
	if err != nil {
		return nil, "", err
	}
	return data, mime.TypeByExtension(path.Ext(resolved)), nil
}

func (b *Book) resolveCoverID(pkg opfPackage) string {
	for _, m := range pkg.Metadata.Meta {
		if m.Name == "cover" {
			if _, ok := b.manifest[m.Content]; ok {
				return m.Content
			}
		}
	}
	if _, ok := b.manifest["cover"]; ok {
		return "cover"
	}
	return b.guessCoverID()
}

// guessCoverID ports get_cover_path's weighting: png outranks jpg/jpeg
// within each tier; a path starting with "cover" at the archive root ranks
// first, then any file whose name starts with "cover" (a nested "cover.*"
// included), then one whose name ends with "cover"; when no image matches
// any tier, the lexicographically first image resource is chosen.
func (b *Book) guessCoverID() string {
	type candidate struct {
		id     string
		weight int
	}
	var candidates []candidate
	for id, item := range b.manifest {
		if !acceptedCoverMimes[item.MediaType] {
			continue
		}
		lower := strings.ToLower(item.Path)
		base := path.Base(lower)
		ext := path.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		isPNG := ext == ".png"

		var weight int
		switch {
		case strings.HasPrefix(lower, "cover"):
			weight = weightFor(isPNG, 100, 75)
		case strings.HasPrefix(stem, "cover"):
			weight = weightFor(isPNG, 65, 55)
		case strings.HasSuffix(stem, "cover"):
			weight = weightFor(isPNG, 45, 35)
		default:
			weight = 0
		}
		candidates = append(candidates, candidate{id: id, weight: weight})
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].weight > candidates[j].weight })
	if candidates[0].weight == 0 {
		sort.Slice(candidates, func(i, j int) bool { return b.manifest[candidates[i].id].Path < b.manifest[candidates[j].id].Path })
		return candidates[0].id
	}
	return candidates[0].id
}

func weightFor(isPNG bool, pngWeight, otherWeight int) int {
	if isPNG {
		return pngWeight
	}
	return otherWeight
}

func extractMetadata(pkg opfPackage) Metadata {
	m := Metadata{
		Creator: pkg.Metadata.Creator,
	}
	if len(pkg.Metadata.Title) > 0 {
		m.Title = pkg.Metadata.Title[0]
	}
	if len(pkg.Metadata.Description) > 0 {
		m.Summary = pkg.Metadata.Description[0]
	}
	if len(pkg.Metadata.Subject) > 0 {
		m.Genre = pkg.Metadata.Subject[0]
	}
	if len(pkg.Metadata.Date) > 0 {
		m.Year = pkg.Metadata.Date[0]
	}
	return m
}

func findRootfile(zr *zip.ReadCloser) (string, error) {
	data, err := readZipEntry(&zr.Reader, "META-INF/container.xml")
	if err != nil {
		return "", err
	}
	var c container
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", err
	}
	if len(c.Rootfiles) == 0 {
		return "", errors.New("epubmeta: container.xml lists no rootfile")
	}
	return c.Rootfiles[0].FullPath, nil
}

func readZipEntry(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, errors.New("epubmeta: entry not found: " + name)
}

func joinOPFPath(dir, href string) string {
	if dir == "" {
		return path.Clean(href)
	}
	return path.Clean(path.Join(dir, href))
}

// normalizeResourcePath resolves a possibly-relative resource reference
// against the OPF's root directory, collapsing "." and ".." segments.
func normalizeResourcePath(p, root string) string {
	if root != "" && !strings.HasPrefix(p, root) {
		p = path.Join(root, p)
	}
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "/")
}
