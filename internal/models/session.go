package models

import (
	"time"

	"github.com/google/uuid"
)

// ActiveReadingSession tracks in-progress reading for one (user, media) pair.
// Unique per pair. Exactly one of Page/EpubCFI is set.
type ActiveReadingSession struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	MediaID    uuid.UUID `json:"media_id" db:"media_id"`
	Page       *int      `json:"page,omitempty" db:"page"`
	EpubCFI    *string   `json:"epubcfi,omitempty" db:"epubcfi"`
	Percentage float64   `json:"percentage" db:"percentage"`
	Device     *string   `json:"device,omitempty" db:"device"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// FinishedReadingSession is a historical (non-unique) completion record.
type FinishedReadingSession struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	MediaID     uuid.UUID `json:"media_id" db:"media_id"`
	Device      *string   `json:"device,omitempty" db:"device"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// ProgressCompletion is the wire shape returned by GET
// /media/:id/progress/complete (spec scenario S4).
type ProgressCompletion struct {
	IsCompleted       bool       `json:"is_completed"`
	LastCompletedAt   *time.Time `json:"last_completed_at,omitempty"`
}
