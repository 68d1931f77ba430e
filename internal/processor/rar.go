package processor

import (
	"archive/zip"
	"encoding/binary"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/stump/stump/internal/apperr"
	"github.com/stump/stump/internal/hash"
)

// RarProcessor handles .cbr/.rar archives via a minimal from-scratch
// RAR4 volume reader — no pack dependency ships an open license-
// compatible RAR decoder, so entries are parsed directly against the
// documented block format. Only the STORE method (uncompressed entries)
// can be extracted; compressed entries are enumerable (name, size, for
// page counts and listings) but GetPage on one fails with NotSupported,
// since reproducing RAR's proprietary compression codec is out of reach
// of a from-scratch reader.
type RarProcessor struct{}

func (p *RarProcessor) SampleSize() int { return hash.SampleSize }

func (p *RarProcessor) Hash(path string) (string, error) {
	return hash.Stump(path)
}

func (p *RarProcessor) KoreaderHash(path string) (string, error) {
	return hash.KOReader(path)
}

func (p *RarProcessor) Process(path string) (*ProcessResult, error) {
	entries, err := readRarEntries(path)
	if err != nil {
		return nil, err
	}
	pages := imageRarEntries(entries)
	return &ProcessResult{PageCount: len(pages)}, nil
}

func (p *RarProcessor) GetPageCount(path string) (int, error) {
	entries, err := readRarEntries(path)
	if err != nil {
		return 0, err
	}
	return len(imageRarEntries(entries)), nil
}

func (p *RarProcessor) GetPage(path string, index int) ([]byte, string, error) {
	entries, err := readRarEntries(path)
	if err != nil {
		return nil, "", err
	}
	pages := imageRarEntries(entries)
	if index < 0 || index >= len(pages) {
		return nil, "", apperr.New(apperr.KindNotFound, "page index out of range")
	}
	entry := pages[index]
	if entry.method != rarMethodStore {
		return nil, "", apperr.New(apperr.KindNotSupported, "compressed RAR entries cannot be decoded")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindIOError, "open rar", err)
	}
	defer f.Close()
	data := make([]byte, entry.packedSize)
	if _, err := f.ReadAt(data, entry.dataOffset); err != nil {
		return nil, "", apperr.Wrap(apperr.KindIOError, "read rar entry", err)
	}
	return data, SniffContentType(entry.name, data), nil
}

func (p *RarProcessor) GetPageContentTypes(path string) ([]string, error) {
	entries, err := readRarEntries(path)
	if err != nil {
		return nil, err
	}
	pages := imageRarEntries(entries)
	types := make([]string, len(pages))
	for i, e := range pages {
		types[i] = SniffContentType(e.name, nil)
	}
	return types, nil
}

// ConvertToZip rewrites the archive's stored entries into a ZIP sibling,
// failing rather than overwriting when a .zip of that name already exists
// (see DESIGN.md's decision on RAR-to-ZIP conversion semantics).
func ConvertToZip(rarPath, zipPath string) error {
	if _, err := os.Stat(zipPath); err == nil {
		return apperr.New(apperr.KindConflict, "a .zip sibling already exists")
	} else if !os.IsNotExist(err) {
		return apperr.Wrap(apperr.KindIOError, "stat zip target", err)
	}

	entries, err := readRarEntries(rarPath)
	if err != nil {
		return err
	}

	src, err := os.Open(rarPath)
	if err != nil {
		return apperr.Wrap(apperr.KindIOError, "open rar", err)
	}
	defer src.Close()

	out, err := os.Create(zipPath)
	if err != nil {
		return apperr.Wrap(apperr.KindIOError, "create zip", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, e := range entries {
		if e.isDir {
			continue
		}
		if e.method != rarMethodStore {
			zw.Close()
			return apperr.New(apperr.KindNotSupported, "cannot convert a RAR archive with compressed entries: "+e.name)
		}
		w, err := zw.Create(e.name)
		if err != nil {
			zw.Close()
			return apperr.Wrap(apperr.KindIOError, "create zip entry", err)
		}
		if _, err := io.Copy(w, io.NewSectionReader(src, e.dataOffset, e.packedSize)); err != nil {
			zw.Close()
			return apperr.Wrap(apperr.KindIOError, "copy rar entry", err)
		}
	}
	return zw.Close()
}

const (
	rarMarkerSize  = 7
	rarMethodStore = 0x30

	rarHeadTypeMain = 0x73
	rarHeadTypeFile = 0x74
)

type rarEntry struct {
	name       string
	isDir      bool
	method     byte
	packedSize int64
	dataOffset int64
}

func imageRarEntries(entries []rarEntry) []rarEntry {
	var pages []rarEntry
	for _, e := range entries {
		if e.isDir || !isImageName(e.name) {
			continue
		}
		pages = append(pages, e)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].name < pages[j].name })
	return pages
}

// readRarEntries walks the RAR4 block stream: a fixed 7-byte marker
// block, a main archive header, then one file header per entry. Each
// header starts with a 7-byte common prefix (CRC, type, flags, size)
// that's enough to locate the next block regardless of type, which is
// what lets this reader skip block kinds it doesn't care about (comment
// blocks, recovery records, RAR5's different layout is out of scope).
func readRarEntries(path string) ([]rarEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIOError, "open rar", err)
	}
	defer f.Close()

	marker := make([]byte, rarMarkerSize)
	if _, err := io.ReadFull(f, marker); err != nil {
		return nil, apperr.Wrap(apperr.KindProcessFileError, "read rar marker", err)
	}
	if marker[0] != 0x52 || marker[1] != 0x61 || marker[2] != 0x72 || marker[3] != 0x21 {
		return nil, apperr.New(apperr.KindProcessFileError, "not a RAR4 archive")
	}

	var entries []rarEntry
	offset := int64(rarMarkerSize)
	for {
		hdr := make([]byte, 7)
		n, err := f.ReadAt(hdr, offset)
		if err == io.EOF && n < 7 {
			break
		}
		if err != nil && err != io.EOF {
			return nil, apperr.Wrap(apperr.KindProcessFileError, "read rar header", err)
		}

		headType := hdr[2]
		flags := binary.LittleEndian.Uint16(hdr[3:5])
		headSize := int64(binary.LittleEndian.Uint16(hdr[5:7]))

		var addSize int64
		if headType == rarHeadTypeFile {
			ext := make([]byte, 21)
			if _, err := f.ReadAt(ext, offset+7); err != nil {
				return nil, apperr.Wrap(apperr.KindProcessFileError, "read rar file header", err)
			}
			packSize := int64(binary.LittleEndian.Uint32(ext[0:4]))
			attrs := binary.LittleEndian.Uint32(ext[11:15])
			method := ext[16]
			nameSize := int(binary.LittleEndian.Uint16(ext[17:19]))

			if flags&0x0100 != 0 {
				// LHD_LARGE: high 32 bits of packed/unpacked size follow the
				// fixed file-header fields; skipped here since comic
				// archives in practice never exceed 4GiB per entry.
			}

			nameBuf := make([]byte, nameSize)
			if _, err := f.ReadAt(nameBuf, offset+7+21); err != nil {
				return nil, apperr.Wrap(apperr.KindProcessFileError, "read rar entry name", err)
			}
			name := strings.ReplaceAll(string(nameBuf), "\\", "/")

			entries = append(entries, rarEntry{
				name:       name,
				isDir:      attrs&0x10 != 0,
				method:     method,
				packedSize: packSize,
				dataOffset: offset + headSize,
			})
			addSize = packSize
		}

		if headSize == 0 {
			break
		}
		offset += headSize + addSize
	}
	return entries, nil
}
