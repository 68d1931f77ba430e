package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSniffContentType_Magic(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"png", []byte("\x89PNG\r\n\x1a\nrest"), "image/png"},
		{"gif87a", []byte("GIF87a..."), "image/gif"},
		{"gif89a", []byte("GIF89a..."), "image/gif"},
		{"bmp", []byte("BM...."), "image/bmp"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SniffContentType("page."+tc.name, tc.data))
		})
	}
}

func TestSniffContentType_WebpRequiresWEBPTag(t *testing.T) {
	valid := append([]byte("RIFF"), []byte("\x00\x00\x00\x00WEBPVP8 ")...)
	assert.Equal(t, "image/webp", SniffContentType("a.webp", valid))

	invalid := append([]byte("RIFF"), []byte("\x00\x00\x00\x00AVI LIST")...)
	assert.NotEqual(t, "image/webp", SniffContentType("a.avi", invalid))
}

func TestSniffContentType_FallsBackToExtension(t *testing.T) {
	assert.Equal(t, "application/json", SniffContentType("notes.json", nil))
}

func TestSniffContentType_UnknownFallsBackToOctetStream(t *testing.T) {
	assert.Equal(t, "application/octet-stream", SniffContentType("mystery.xyz123", []byte("junk")))
}

func TestIsOPDSThumbnailSafe(t *testing.T) {
	assert.True(t, IsOPDSThumbnailSafe("image/jpeg"))
	assert.True(t, IsOPDSThumbnailSafe("image/png"))
	assert.True(t, IsOPDSThumbnailSafe("image/gif"))
	assert.False(t, IsOPDSThumbnailSafe("image/webp"))
	assert.False(t, IsOPDSThumbnailSafe("application/octet-stream"))
}
