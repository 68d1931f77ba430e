package processor

import (
	"bytes"
	"mime"
	"path/filepath"
)

// magicTable keys the first bytes of a page image to its content type,
// since archive entries carry no reliable Content-Type of their own —
// matching the pack's general preference for sniffing over trusting
// extensions for embedded binary payloads.
var magicTable = []struct {
	prefix []byte
	ctype  string
}{
	{[]byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{[]byte("\x89PNG\r\n\x1a\n"), "image/png"},
	{[]byte("GIF87a"), "image/gif"},
	{[]byte("GIF89a"), "image/gif"},
	{[]byte("RIFF"), "image/webp"}, // narrowed further below
	{[]byte("BM"), "image/bmp"},
}

// SniffContentType detects an image's MIME type from its leading bytes,
// falling back to extension-based detection when no magic number matches.
func SniffContentType(name string, data []byte) string {
	for _, m := range magicTable {
		if bytes.HasPrefix(data, m.prefix) {
			if m.ctype == "image/webp" && !bytes.Contains(data[:minInt(len(data), 16)], []byte("WEBP")) {
				continue
			}
			return m.ctype
		}
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// IsOPDSThumbnailSafe reports whether a content type is one of the three
// OPDS v1.2 thumbnail formats the design requires (JPEG/PNG/GIF only).
func IsOPDSThumbnailSafe(ctype string) bool {
	switch ctype {
	case "image/jpeg", "image/png", "image/gif":
		return true
	default:
		return false
	}
}
