package processor

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rarTestEntry struct {
	name string
	data []byte
}

// buildMinimalRar4 hand-assembles a RAR4 byte stream containing only a
// marker block, a main archive header, and one STORE-method file header
// per entry — the exact subset readRarEntries understands.
func buildMinimalRar4(t *testing.T, entries []rarTestEntry) string {
	t.Helper()
	var buf []byte

	// marker block: "Rar!\x1a\x07\x00"
	buf = append(buf, 0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00)

	// main archive header: 13-byte block, head type 0x73.
	mainHdr := make([]byte, 13)
	mainHdr[2] = rarHeadTypeMain
	binary.LittleEndian.PutUint16(mainHdr[5:7], 13)
	buf = append(buf, mainHdr...)

	for _, e := range entries {
		nameBytes := []byte(e.name)
		headSize := uint16(7 + 21 + len(nameBytes))

		common := make([]byte, 7)
		common[2] = rarHeadTypeFile
		binary.LittleEndian.PutUint16(common[5:7], headSize)

		ext := make([]byte, 21)
		binary.LittleEndian.PutUint32(ext[0:4], uint32(len(e.data)))
		binary.LittleEndian.PutUint32(ext[11:15], 0) // attrs: not a directory
		ext[16] = rarMethodStore
		binary.LittleEndian.PutUint16(ext[17:19], uint16(len(nameBytes)))

		buf = append(buf, common...)
		buf = append(buf, ext...)
		buf = append(buf, nameBytes...)
		buf = append(buf, e.data...)
	}

	path := filepath.Join(t.TempDir(), "comic.cbr")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestRarProcessor_GetPageCount(t *testing.T) {
	path := buildMinimalRar4(t, []rarTestEntry{
		{"001.jpg", []byte("page-one-bytes")},
		{"002.jpg", []byte("page-two-bytes")},
	})

	p := &RarProcessor{}
	n, err := p.GetPageCount(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRarProcessor_GetPage_StoredEntry(t *testing.T) {
	path := buildMinimalRar4(t, []rarTestEntry{
		{"002.jpg", []byte("page-two-bytes")},
		{"001.jpg", []byte("page-one-bytes")},
	})

	p := &RarProcessor{}
	data, ctype, err := p.GetPage(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "page-one-bytes", string(data))
	assert.Equal(t, "image/jpeg", ctype)
}

func TestRarProcessor_GetPage_OutOfRange(t *testing.T) {
	path := buildMinimalRar4(t, []rarTestEntry{{"001.jpg", []byte("x")}})
	p := &RarProcessor{}
	_, _, err := p.GetPage(path, 5)
	assert.Error(t, err)
}

func TestRarProcessor_Process_NotARarFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notrar.cbr")
	require.NoError(t, os.WriteFile(path, []byte("not a rar file at all"), 0o644))

	p := &RarProcessor{}
	_, err := p.Process(path)
	assert.Error(t, err)
}

func TestRarProcessor_GetPageContentTypes(t *testing.T) {
	path := buildMinimalRar4(t, []rarTestEntry{
		{"001.jpg", []byte("x")},
		{"002.png", []byte("y")},
	})
	p := &RarProcessor{}
	types, err := p.GetPageContentTypes(path)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "image/jpeg", types[0])
	assert.Equal(t, "image/png", types[1])
}

func TestConvertToZip_RefusesExistingTarget(t *testing.T) {
	rarPath := buildMinimalRar4(t, []rarTestEntry{{"001.jpg", []byte("x")}})
	zipPath := filepath.Join(filepath.Dir(rarPath), "comic.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("already here"), 0o644))

	err := ConvertToZip(rarPath, zipPath)
	assert.Error(t, err)
}

func TestConvertToZip_ConvertsStoredEntries(t *testing.T) {
	rarPath := buildMinimalRar4(t, []rarTestEntry{
		{"001.jpg", []byte("page-one-bytes")},
	})
	zipPath := filepath.Join(filepath.Dir(rarPath), "comic.zip")

	err := ConvertToZip(rarPath, zipPath)
	require.NoError(t, err)

	zp := &ZipProcessor{}
	data, _, err := zp.GetPage(zipPath, 0)
	require.NoError(t, err)
	assert.Equal(t, "page-one-bytes", string(data))
}
