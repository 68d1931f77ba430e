// Package processor implements a uniform file-processor contract: every
// comic archive or e-book format exposes the same Process/GetPage/
// GetPageCount surface regardless of its on-disk layout.
package processor

import (
	"bytes"
	"fmt"

	"github.com/stump/stump/internal/apperr"
)

// ProcessorKind tags which concrete Processor a file dispatches to.
type ProcessorKind string

const (
	KindZip  ProcessorKind = "ZIP"
	KindRar  ProcessorKind = "RAR"
	KindEpub ProcessorKind = "EPUB"
	KindPDF  ProcessorKind = "PDF"
)

// ProcessResult is what Process returns: page count plus whatever
// embedded metadata the format carries (ComicInfo.xml, EPUB Dublin Core).
type ProcessResult struct {
	PageCount int
	Metadata  *ExtractedMetadata
}

// ExtractedMetadata is the processor-agnostic shape callers fold into
// models.MediaMetadata.
type ExtractedMetadata struct {
	Title    string
	Series   string
	Number   float64
	Volume   int
	Year     int
	Genre    string
	Summary  string
	Creators []string
	AgeRating int
}

// Processor is the uniform contract every format implements.
type Processor interface {
	// SampleSize returns how many bytes Hash/KoreaderHash need sampled
	// from disk — most formats just delegate to internal/hash directly.
	SampleSize() int
	Hash(path string) (string, error)
	KoreaderHash(path string) (string, error)
	Process(path string) (*ProcessResult, error)
	GetPage(path string, index int) ([]byte, string, error)
	GetPageCount(path string) (int, error)
	GetPageContentTypes(path string) ([]string, error)
}

// Dispatch selects a ProcessorKind by extension, falling back to a magic-
// number sniff for ambiguous extensions (".cbz"/".zip" both sniff as a ZIP
// local-file-header magic, so the extension decides display/convert
// behavior while the sniff only matters when the extension is unknown).
func Dispatch(extension string, sniff []byte) ProcessorKind {
	switch extension {
	case ".cbz", ".zip":
		return KindZip
	case ".cbr", ".rar":
		return KindRar
	case ".epub":
		return KindEpub
	case ".pdf":
		return KindPDF
	}
	switch {
	case bytes.HasPrefix(sniff, []byte("PK\x03\x04")):
		return KindZip
	case bytes.HasPrefix(sniff, []byte("Rar!\x1a\x07")):
		return KindRar
	case bytes.HasPrefix(sniff, []byte("%PDF")):
		return KindPDF
	}
	return ""
}

// For builds the Processor for a dispatched kind.
func For(kind ProcessorKind) (Processor, error) {
	switch kind {
	case KindZip:
		return &ZipProcessor{}, nil
	case KindRar:
		return &RarProcessor{}, nil
	case KindEpub:
		return &EpubProcessor{}, nil
	case KindPDF:
		return nil, apperr.New(apperr.KindNotSupported, "PDF processing is not implemented")
	default:
		return nil, apperr.New(apperr.KindNotSupported, fmt.Sprintf("unknown processor kind %q", kind))
	}
}
