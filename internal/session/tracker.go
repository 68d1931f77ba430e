// Package session implements the Reading Session Tracker:
// upserting in-progress position and atomically retiring it to history on
// completion.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stump/stump/internal/apperr"
	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/repository"
)

// completeTimeout bounds the active->finished transition per the
// "10-second bounded timeout" — a stuck transaction releases the
// connection rather than holding it indefinitely.
const completeTimeout = 10 * time.Second

// Tracker wraps SessionRepository with the invariants enforced
// at the call site rather than in the repository layer, so the "page XOR
// epubcfi" rule lives next to the domain operation it protects.
type Tracker struct {
	sessions *repository.SessionRepository
	media    *repository.MediaRepository
}

func NewTracker(sessions *repository.SessionRepository, media *repository.MediaRepository) *Tracker {
	return &Tracker{sessions: sessions, media: media}
}

var ErrProgressShapeInvalid = errors.New("exactly one of page or epubcfi must be set")

// ProgressUpdateResult is UpdateProgress's outcome. Active is set for an
// ordinary in-progress update; Finished is set instead when this update's
// page reached the media's last page, in which case the active session was
// already retired to history before returning.
type ProgressUpdateResult struct {
	Active   *models.ActiveReadingSession   `json:"active,omitempty"`
	Finished *models.FinishedReadingSession `json:"finished,omitempty"`
}

// UpdateProgress upserts the active session for (userID, mediaID), then
// completes it in the same call (scenario S4) if page has reached the
// media's last page — a client that stops after sending the final page
// update still ends up with a finished session, with no separate
// /progress/complete call required.
// Exactly one of page/epubcfi must be non-nil — paginated formats report
// page, reflowable EPUB content reports a CFI, never both.
func (t *Tracker) UpdateProgress(ctx context.Context, userID, mediaID uuid.UUID, page *int, epubcfi *string, percentage float64, device *string) (*ProgressUpdateResult, error) {
	if (page == nil) == (epubcfi == nil) {
		return nil, apperr.Wrap(apperr.KindBadRequest, "invalid progress update", ErrProgressShapeInvalid)
	}

	s := &models.ActiveReadingSession{
		UserID:     userID,
		MediaID:    mediaID,
		Page:       page,
		EpubCFI:    epubcfi,
		Percentage: percentage,
		Device:     device,
	}
	if err := t.sessions.UpsertActive(ctx, s); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabaseError, "upsert active session", err)
	}

	if page != nil {
		m, err := t.media.GetByID(mediaID)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindNotFound, "media not found", err)
		}
		if m.Pages > 0 && *page >= m.Pages {
			finished, err := t.CompleteSession(ctx, userID, mediaID)
			if err != nil {
				return nil, err
			}
			return &ProgressUpdateResult{Finished: finished}, nil
		}
	}

	active, err := t.sessions.GetActive(ctx, userID, mediaID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabaseError, "get active session", err)
	}
	return &ProgressUpdateResult{Active: active}, nil
}

// CompleteSession retires the active session to history (scenario S4):
// the active row is deleted, a finished row is inserted preserving
// StartedAt/Device, all inside one time-bounded transaction.
func (t *Tracker) CompleteSession(ctx context.Context, userID, mediaID uuid.UUID) (*models.FinishedReadingSession, error) {
	ctx, cancel := context.WithTimeout(ctx, completeTimeout)
	defer cancel()

	finished, err := t.sessions.CompleteSession(ctx, userID, mediaID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabaseError, "complete session", err)
	}
	return finished, nil
}

// Completion reports whether (userID, mediaID) has ever been completed,
// backing GET /media/:id/progress/complete (scenario S4).
func (t *Tracker) Completion(ctx context.Context, userID, mediaID uuid.UUID) (*models.ProgressCompletion, error) {
	return t.sessions.LatestCompletion(ctx, userID, mediaID)
}
