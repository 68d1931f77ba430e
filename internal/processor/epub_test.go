package processor

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epubContainerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const epubPackageOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata>
    <title>Processor Test Book</title>
    <creator>Ada Lovelace</creator>
    <description>A book for processor tests.</description>
    <subject>Fiction</subject>
    <date>2021-05-01</date>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="cover-img" href="images/cover.jpg" media-type="image/jpeg"/>
    <item id="chapter1" href="text/chapter1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="chapter1"/>
  </spine>
</package>`

func buildTestEPUB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	entries := map[string]string{
		"META-INF/container.xml":    epubContainerXML,
		"OEBPS/content.opf":         epubPackageOPF,
		"OEBPS/images/cover.jpg":    "jpeg-bytes",
		"OEBPS/text/chapter1.xhtml": "<html>chapter one</html>",
	}
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestEpubProcessor_Process(t *testing.T) {
	path := buildTestEPUB(t)
	p := &EpubProcessor{}

	result, err := p.Process(path)
	require.NoError(t, err)
	assert.Equal(t, 2, result.PageCount)
	assert.Equal(t, "Processor Test Book", result.Metadata.Title)
	assert.Equal(t, 2021, result.Metadata.Year)
	assert.Equal(t, []string{"Ada Lovelace"}, result.Metadata.Creators)
}

func TestEpubProcessor_GetPage(t *testing.T) {
	path := buildTestEPUB(t)
	p := &EpubProcessor{}

	data, ctype, err := p.GetPage(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, "image/jpeg", ctype)
}

func TestEpubProcessor_GetPageCount(t *testing.T) {
	path := buildTestEPUB(t)
	p := &EpubProcessor{}
	n, err := p.GetPageCount(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEpubProcessor_GetPageContentTypes(t *testing.T) {
	path := buildTestEPUB(t)
	p := &EpubProcessor{}
	types, err := p.GetPageContentTypes(path)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "image/jpeg", types[0])
}

func TestParseYear(t *testing.T) {
	assert.Equal(t, 2021, parseYear("2021-05-01"))
	assert.Equal(t, 0, parseYear("unknown"))
	assert.Equal(t, 0, parseYear("2"))
}
