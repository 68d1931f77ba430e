package models

import (
	"time"

	"github.com/google/uuid"
)

// Series is one directory under a Library (or the library root itself when
// it directly contains books).
type Series struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	LibraryID uuid.UUID     `json:"library_id" db:"library_id"`
	Name      string        `json:"name" db:"name"`
	Path      string        `json:"path" db:"path"`
	Status    LibraryStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`

	Metadata *SeriesMetadata `json:"metadata,omitempty"`
}

// SeriesMetadata carries optional descriptive fields parsed from a
// series-level metadata file (e.g. series.json in the original) or
// aggregated from its media.
type SeriesMetadata struct {
	SeriesID   uuid.UUID `json:"series_id" db:"series_id"`
	Summary    *string   `json:"summary,omitempty" db:"summary"`
	AgeRating  *int      `json:"age_rating,omitempty" db:"age_rating"`
	Publisher  *string   `json:"publisher,omitempty" db:"publisher"`
}
