package processor

import (
	"github.com/stump/stump/internal/apperr"
	"github.com/stump/stump/internal/epubmeta"
	"github.com/stump/stump/internal/hash"
)

// EpubProcessor handles .epub e-books. Page 0 is always the cover;
// subsequent pages walk the spine in reading order, matching the
// cover-then-chapters page numbering the original EPUB processor used.
type EpubProcessor struct{}

func (p *EpubProcessor) SampleSize() int { return hash.SampleSize }

func (p *EpubProcessor) Hash(path string) (string, error) {
	return hash.Stump(path)
}

func (p *EpubProcessor) KoreaderHash(path string) (string, error) {
	return hash.KOReader(path)
}

func (p *EpubProcessor) Process(path string) (*ProcessResult, error) {
	book, err := epubmeta.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessFileError, "open epub", err)
	}
	defer book.Close()

	return &ProcessResult{
		PageCount: book.PageCount(),
		Metadata: &ExtractedMetadata{
			Title:    book.Metadata.Title,
			Summary:  book.Metadata.Summary,
			Genre:    book.Metadata.Genre,
			Year:     parseYear(book.Metadata.Year),
			Creators: book.Metadata.Creator,
		},
	}, nil
}

func (p *EpubProcessor) GetPageCount(path string) (int, error) {
	book, err := epubmeta.Open(path)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindProcessFileError, "open epub", err)
	}
	defer book.Close()
	return book.PageCount(), nil
}

func (p *EpubProcessor) GetPage(path string, index int) ([]byte, string, error) {
	book, err := epubmeta.Open(path)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindProcessFileError, "open epub", err)
	}
	defer book.Close()

	data, ctype, err := book.GetPage(index)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindNotFound, "get epub page", err)
	}
	if ctype == "" {
		ctype = SniffContentType("", data)
	}
	return data, ctype, nil
}

func (p *EpubProcessor) GetPageContentTypes(path string) ([]string, error) {
	book, err := epubmeta.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessFileError, "open epub", err)
	}
	defer book.Close()
	return book.GetPageContentTypes()
}

// parseYear extracts a leading four-digit year from an EPUB's Dublin Core
// <dc:date> value, which is frequently a full ISO 8601 timestamp.
func parseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	var year int
	for i := 0; i < 4; i++ {
		c := date[i]
		if c < '0' || c > '9' {
			return 0
		}
		year = year*10 + int(c-'0')
	}
	return year
}
