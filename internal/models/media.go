package models

import (
	"time"

	"github.com/google/uuid"
)

// Media is one file on disk: a comic archive or e-book.
type Media struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	SeriesID    uuid.UUID     `json:"series_id" db:"series_id"`
	Name        string        `json:"name" db:"name"`
	Extension   string        `json:"extension" db:"extension"`
	Size        int64         `json:"size" db:"size"`
	Pages       int           `json:"pages" db:"pages"`
	Path        string        `json:"path" db:"path"`
	Status      LibraryStatus `json:"status" db:"status"`
	StumpHash   *string       `json:"stump_hash,omitempty" db:"stump_hash"`
	KoreaderHash *string      `json:"koreader_hash,omitempty" db:"koreader_hash"`
	ModifiedAt  time.Time     `json:"modified_at" db:"modified_at"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`

	Metadata *MediaMetadata `json:"metadata,omitempty"`
}

// MediaMetadata is the rich, optional metadata extracted from a book's
// embedded metadata (ComicInfo.xml, EPUB Dublin Core, ...).
type MediaMetadata struct {
	MediaID  uuid.UUID `json:"media_id" db:"media_id"`
	Title    *string   `json:"title,omitempty" db:"title"`
	Series   *string   `json:"series,omitempty" db:"series"`
	Number   *float64  `json:"number,omitempty" db:"number"`
	Volume   *int      `json:"volume,omitempty" db:"volume"`
	Year     *int      `json:"year,omitempty" db:"year"`
	Genre    *string   `json:"genre,omitempty" db:"genre"`
	Summary  *string   `json:"summary,omitempty" db:"summary"`
	Creators []string  `json:"creators,omitempty" db:"-"`

	AgeRating *int `json:"age_rating,omitempty" db:"age_rating"`

	PageWidth  *int `json:"page_width,omitempty" db:"page_width"`
	PageHeight *int `json:"page_height,omitempty" db:"page_height"`
}

// ScanResult aggregates counters for one completed (or in-progress) Library
// Scan Job — the Job Framework's Output for TaskScanLibrary.
// TotalFiles is the sum of Ignored, Skipped, Created, Visited, Missing,
// and Recovered — files only, at the series-walk granularity. Ignored
// directories (no media of their own, but pruned from the library walk)
// are tracked separately in IgnoredDirectories so they don't throw off
// that partition.
type ScanResult struct {
	TotalFiles         int      `json:"total_files"`
	Created            int      `json:"created"`
	Visited            int      `json:"visited"`
	Missing            int      `json:"missing"`
	Recovered          int      `json:"recovered"`
	Skipped            int      `json:"skipped"`
	Ignored            int      `json:"ignored"`
	IgnoredDirectories int      `json:"ignored_directories"`
	SeriesCreated      int      `json:"series_created"`
	SeriesMissing      int      `json:"series_missing"`
	SeriesRecovered     int     `json:"series_recovered"`
	Errors             []string `json:"errors,omitempty"`
}

// Merge combines another ScanResult into r, satisfying the Job Framework's
// "aggregatable Output with a merge rule" contract.
func (r *ScanResult) Merge(other ScanResult) {
	r.TotalFiles += other.TotalFiles
	r.Created += other.Created
	r.Visited += other.Visited
	r.Missing += other.Missing
	r.Recovered += other.Recovered
	r.Skipped += other.Skipped
	r.Ignored += other.Ignored
	r.IgnoredDirectories += other.IgnoredDirectories
	r.SeriesCreated += other.SeriesCreated
	r.SeriesMissing += other.SeriesMissing
	r.SeriesRecovered += other.SeriesRecovered
	r.Errors = append(r.Errors, other.Errors...)
}
