package models

import (
	"time"

	"github.com/google/uuid"
)

// LibraryStatus mirrors the three states a Library can be in on disk.
type LibraryStatus string

const (
	LibraryStatusReady       LibraryStatus = "READY"
	LibraryStatusMissing     LibraryStatus = "MISSING"
	LibraryStatusUnsupported LibraryStatus = "UNSUPPORTED"
)

// LibraryPattern determines how a library's directory tree is partitioned
// into series during a scan.
type LibraryPattern string

const (
	PatternCollectionBased LibraryPattern = "COLLECTION_BASED"
	PatternSeriesBased     LibraryPattern = "SERIES_BASED"
)

// Library is a named rooted directory on disk.
type Library struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Path      string        `json:"path" db:"path"`
	Status    LibraryStatus `json:"status" db:"status"`
	Emoji     *string       `json:"emoji,omitempty" db:"emoji"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`

	LastScannedAt *time.Time `json:"last_scanned_at,omitempty" db:"last_scanned_at"`

	Config LibraryConfig `json:"config"`
}

// LibraryConfig holds the per-library behavior knobs
type LibraryConfig struct {
	ID                   uuid.UUID      `json:"id" db:"id"`
	LibraryID            uuid.UUID      `json:"library_id" db:"library_id"`
	ConvertRarToZip      bool           `json:"convert_rar_to_zip" db:"convert_rar_to_zip"`
	HardDeleteConversions bool          `json:"hard_delete_conversions" db:"hard_delete_conversions"`
	GenerateStumpHash    bool           `json:"generate_stump_hash" db:"generate_stump_hash"`
	GenerateKoreaderHash bool           `json:"generate_koreader_hash" db:"generate_koreader_hash"`
	ProcessMetadata      bool           `json:"process_metadata" db:"process_metadata"`
	LibraryPattern       LibraryPattern `json:"library_pattern" db:"library_pattern"`
	ThumbnailFormat      string         `json:"thumbnail_format" db:"thumbnail_format"`
	ThumbnailSizingWidth int            `json:"thumbnail_sizing_width" db:"thumbnail_sizing_width"`
	IgnoreRules          []string       `json:"ignore_rules" db:"-"`
	Watch                bool           `json:"watch" db:"watch"`
}

// LibraryScanRecord links a completed job to a library with the scan options
// that were in effect.
type LibraryScanRecord struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	LibraryID uuid.UUID  `json:"library_id" db:"library_id"`
	JobID     uuid.UUID  `json:"job_id" db:"job_id"`
	Options   ScanOptions `json:"options" db:"-"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ScanOptions are caller-supplied flags that modify walker behavior for one
// scan (Glossary: "Scan Options").
type ScanOptions struct {
	ForceRescan      bool `json:"force_rescan"`
	RegenerateHashes bool `json:"regenerate_hashes"`
	ReprocessMetadata bool `json:"reprocess_metadata"`
}
