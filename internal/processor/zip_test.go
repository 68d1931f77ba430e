package processor

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleComicInfo = `<?xml version="1.0"?>
<ComicInfo>
  <Title>Issue One</Title>
  <Series>Test Series</Series>
  <Number>1</Number>
</ComicInfo>`

func buildCBZ(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "comic.cbz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestZipProcessor_ProcessCountsImagePagesAndParsesComicInfo(t *testing.T) {
	path := buildCBZ(t, map[string]string{
		"002.jpg":        "page-two-bytes",
		"001.jpg":        "page-one-bytes",
		"ComicInfo.xml":  sampleComicInfo,
		"readme.txt":     "not a page",
	})

	p := &ZipProcessor{}
	result, err := p.Process(path)
	require.NoError(t, err)
	assert.Equal(t, 2, result.PageCount)
	require.NotNil(t, result.Metadata)
	assert.Equal(t, "Issue One", result.Metadata.Title)
	assert.Equal(t, "Test Series", result.Metadata.Series)
}

func TestZipProcessor_GetPage_SortedByName(t *testing.T) {
	path := buildCBZ(t, map[string]string{
		"002.jpg": "page-two-bytes",
		"001.jpg": "page-one-bytes",
	})

	p := &ZipProcessor{}
	data, ctype, err := p.GetPage(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "page-one-bytes", string(data))
	assert.Equal(t, "image/jpeg", ctype)

	data, _, err = p.GetPage(path, 1)
	require.NoError(t, err)
	assert.Equal(t, "page-two-bytes", string(data))
}

func TestZipProcessor_GetPage_OutOfRange(t *testing.T) {
	path := buildCBZ(t, map[string]string{"001.jpg": "x"})
	p := &ZipProcessor{}
	_, _, err := p.GetPage(path, 5)
	assert.Error(t, err)
}

func TestZipProcessor_GetPageCount_IgnoresNonImageEntries(t *testing.T) {
	path := buildCBZ(t, map[string]string{
		"001.jpg":       "x",
		"002.png":       "x",
		"ComicInfo.xml": sampleComicInfo,
	})
	p := &ZipProcessor{}
	n, err := p.GetPageCount(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestZipProcessor_GetPageContentTypes(t *testing.T) {
	path := buildCBZ(t, map[string]string{
		"001.jpg": "x",
		"002.png": "x",
	})
	p := &ZipProcessor{}
	types, err := p.GetPageContentTypes(path)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "image/jpeg", types[0])
	assert.Equal(t, "image/png", types[1])
}

func TestZipProcessor_Process_NoComicInfoLeavesMetadataNil(t *testing.T) {
	path := buildCBZ(t, map[string]string{"001.jpg": "x"})
	p := &ZipProcessor{}
	result, err := p.Process(path)
	require.NoError(t, err)
	assert.Nil(t, result.Metadata)
}

func TestZipProcessor_HashAndKoreaderHash(t *testing.T) {
	path := buildCBZ(t, map[string]string{"001.jpg": "some bytes"})
	p := &ZipProcessor{}

	h, err := p.Hash(path)
	require.NoError(t, err)
	assert.NotEmpty(t, h)

	kh, err := p.KoreaderHash(path)
	require.NoError(t, err)
	assert.NotEmpty(t, kh)
}
