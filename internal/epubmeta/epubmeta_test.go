package epubmeta

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const packageOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata>
    <title>A Test Book</title>
    <creator>Ada Lovelace</creator>
    <description>A book for testing.</description>
    <subject>Fiction</subject>
    <date>2020</date>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="cover-img" href="images/cover.jpg" media-type="image/jpeg"/>
    <item id="chapter1" href="text/chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="chapter2" href="text/chapter2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="chapter1"/>
    <itemref idref="chapter2"/>
  </spine>
</package>`

type zipEntry struct {
	name string
	data []byte
}

func buildEPUB(t *testing.T, entries []zipEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func basicEPUBEntries() []zipEntry {
	return []zipEntry{
		{"META-INF/container.xml", []byte(containerXML)},
		{"OEBPS/content.opf", []byte(packageOPF)},
		{"OEBPS/images/cover.jpg", []byte("jpeg-bytes")},
		{"OEBPS/text/chapter1.xhtml", []byte("<html>chapter one</html>")},
		{"OEBPS/text/chapter2.xhtml", []byte("<html>chapter two</html>")},
	}
}

func TestOpen_ParsesMetadataManifestAndSpine(t *testing.T) {
	path := buildEPUB(t, basicEPUBEntries())

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "A Test Book", b.Metadata.Title)
	assert.Equal(t, []string{"Ada Lovelace"}, b.Metadata.Creator)
	assert.Equal(t, "A book for testing.", b.Metadata.Summary)
	assert.Equal(t, "Fiction", b.Metadata.Genre)
	assert.Equal(t, "2020", b.Metadata.Year)

	// cover + 2 spine entries
	assert.Equal(t, 3, b.PageCount())
}

func TestGetCover_ExplicitMetaWins(t *testing.T) {
	path := buildEPUB(t, basicEPUBEntries())
	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	data, ctype, err := b.GetCover()
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, "image/jpeg", ctype)
}

func TestGetPage_CoverIsIndexZero(t *testing.T) {
	path := buildEPUB(t, basicEPUBEntries())
	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	data, ctype, err := b.GetPage(0)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, "image/jpeg", ctype)

	data, ctype, err = b.GetPage(1)
	require.NoError(t, err)
	assert.Equal(t, "<html>chapter one</html>", string(data))
	assert.Equal(t, "application/xhtml+xml", ctype)
}

func TestGetPage_OutOfRange(t *testing.T) {
	path := buildEPUB(t, basicEPUBEntries())
	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	_, _, err = b.GetPage(-1)
	assert.Error(t, err)
	_, _, err = b.GetPage(b.PageCount())
	assert.Error(t, err)
}

func TestGetPageContentTypes(t *testing.T) {
	path := buildEPUB(t, basicEPUBEntries())
	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	types, err := b.GetPageContentTypes()
	require.NoError(t, err)
	require.Len(t, types, 3)
	assert.Equal(t, "image/jpeg", types[0])
	assert.Equal(t, "application/xhtml+xml", types[1])
	assert.Equal(t, "application/xhtml+xml", types[2])
}

func TestGuessCoverID_FallsBackToWeightedFilename(t *testing.T) {
	// No explicit cover meta, no manifest id "cover" — must fall back to
	// the filename heuristic and prefer the top-level "cover.png" match.
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata><title>No Explicit Cover</title></metadata>
  <manifest>
    <item id="img1" href="images/cover.png" media-type="image/png"/>
    <item id="img2" href="images/back-cover.jpg" media-type="image/jpeg"/>
    <item id="chapter1" href="text/chapter1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="chapter1"/></spine>
</package>`
	entries := []zipEntry{
		{"META-INF/container.xml", []byte(containerXML)},
		{"OEBPS/content.opf", []byte(opf)},
		{"OEBPS/images/cover.png", []byte("png-bytes")},
		{"OEBPS/images/back-cover.jpg", []byte("jpeg-bytes")},
		{"OEBPS/text/chapter1.xhtml", []byte("<html></html>")},
	}
	path := buildEPUB(t, entries)
	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	data, ctype, err := b.GetCover()
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", ctype)
}

func TestGetResourceByID_Unknown(t *testing.T) {
	path := buildEPUB(t, basicEPUBEntries())
	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	_, _, err = b.GetResourceByID("does-not-exist")
	assert.Error(t, err)
}

func TestGetResourceByPath_ResolvesRelativeToOPFDir(t *testing.T) {
	path := buildEPUB(t, basicEPUBEntries())
	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	data, ctype, err := b.GetResourceByPath("images/cover.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, "image/jpeg", ctype)
}

func TestNormalizeResourcePath(t *testing.T) {
	tests := []struct {
		name string
		p    string
		root string
		want string
	}{
		{"already under root", "OEBPS/images/cover.jpg", "OEBPS", "OEBPS/images/cover.jpg"},
		{"relative needs joining", "images/cover.jpg", "OEBPS", "OEBPS/images/cover.jpg"},
		{"parent traversal collapses", "OEBPS/text/../images/cover.jpg", "OEBPS", "OEBPS/images/cover.jpg"},
		{"no root", "images/cover.jpg", "", "images/cover.jpg"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeResourcePath(tc.p, tc.root))
		})
	}
}

func TestOpen_MissingContainer(t *testing.T) {
	path := buildEPUB(t, []zipEntry{{"OEBPS/content.opf", []byte(packageOPF)}})
	_, err := Open(path)
	assert.Error(t, err)
}
