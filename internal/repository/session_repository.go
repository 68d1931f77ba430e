package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/stump/stump/internal/models"
)

// SessionRepository persists reading progress using an upsert-on-conflict
// pattern, split across an "active" table (one row per user+media, unique
// constraint enforced) and a "finished" history table, matching the
// ActiveReadingSession/FinishedReadingSession split.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// UpsertActive inserts or updates the one active session for (UserID,
// MediaID), the read side of the session tracker's UpdateProgress.
func (r *SessionRepository) UpsertActive(ctx context.Context, s *models.ActiveReadingSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	query := `
		INSERT INTO active_reading_sessions (id, user_id, media_id, page, epubcfi, percentage, device, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, media_id) DO UPDATE SET
			page = excluded.page,
			epubcfi = excluded.epubcfi,
			percentage = excluded.percentage,
			device = COALESCE(excluded.device, active_reading_sessions.device),
			updated_at = CURRENT_TIMESTAMP`
	_, err := r.db.ExecContext(ctx, query, s.ID.String(), s.UserID.String(), s.MediaID.String(),
		s.Page, s.EpubCFI, s.Percentage, s.Device)
	return err
}

func (r *SessionRepository) GetActive(ctx context.Context, userID, mediaID uuid.UUID) (*models.ActiveReadingSession, error) {
	s := &models.ActiveReadingSession{}
	var idStr, userIDStr, mediaIDStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, media_id, page, epubcfi, percentage, device, started_at, updated_at
		FROM active_reading_sessions WHERE user_id = ? AND media_id = ?`, userID.String(), mediaID.String()).
		Scan(&idStr, &userIDStr, &mediaIDStr, &s.Page, &s.EpubCFI, &s.Percentage, &s.Device, &s.StartedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.ID, _ = uuid.Parse(idStr)
	s.UserID, _ = uuid.Parse(userIDStr)
	s.MediaID, _ = uuid.Parse(mediaIDStr)
	return s, nil
}

// CompleteSession performs the atomic active->finished transition the
// session tracker's CompleteSession needs: read the active row, write a
// finished row preserving StartedAt/Device, delete the active row — all
// inside one transaction so a crash never leaves a session in both states.
func (r *SessionRepository) CompleteSession(ctx context.Context, userID, mediaID uuid.UUID) (*models.FinishedReadingSession, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	active := &models.ActiveReadingSession{}
	var idStr, userIDStr, mediaIDStr string
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, media_id, page, epubcfi, percentage, device, started_at, updated_at
		FROM active_reading_sessions WHERE user_id = ? AND media_id = ?`, userID.String(), mediaID.String()).
		Scan(&idStr, &userIDStr, &mediaIDStr, &active.Page, &active.EpubCFI, &active.Percentage,
			&active.Device, &active.StartedAt, &active.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no active session for this media")
	}
	if err != nil {
		return nil, err
	}

	finished := &models.FinishedReadingSession{
		ID:        uuid.New(),
		UserID:    userID,
		MediaID:   mediaID,
		Device:    active.Device,
		StartedAt: active.StartedAt,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO finished_reading_sessions (id, user_id, media_id, device, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		RETURNING completed_at`,
		finished.ID.String(), userID.String(), mediaID.String(), finished.Device, finished.StartedAt).
		Scan(&finished.CompletedAt)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM active_reading_sessions WHERE user_id = ? AND media_id = ?`,
		userID.String(), mediaID.String()); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return finished, nil
}

// LatestCompletion backs the ProgressCompletion wire response (spec
// scenario S4): whether this user has ever finished this media, and when.
func (r *SessionRepository) LatestCompletion(ctx context.Context, userID, mediaID uuid.UUID) (*models.ProgressCompletion, error) {
	var completedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT completed_at FROM finished_reading_sessions WHERE user_id = ? AND media_id = ?
		ORDER BY completed_at DESC LIMIT 1`,
		userID.String(), mediaID.String()).Scan(&completedAt)
	if err == sql.ErrNoRows {
		return &models.ProgressCompletion{IsCompleted: false}, nil
	}
	if err != nil {
		return nil, err
	}
	if !completedAt.Valid {
		return &models.ProgressCompletion{IsCompleted: false}, nil
	}
	t := completedAt.Time
	return &models.ProgressCompletion{IsCompleted: true, LastCompletedAt: &t}, nil
}

func (r *SessionRepository) ListFinishedByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.FinishedReadingSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, media_id, device, started_at, completed_at
		FROM finished_reading_sessions WHERE user_id = ? ORDER BY completed_at DESC LIMIT ?`,
		userID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.FinishedReadingSession
	for rows.Next() {
		fs := &models.FinishedReadingSession{}
		var idStr, userIDStr, mediaIDStr string
		if err := rows.Scan(&idStr, &userIDStr, &mediaIDStr, &fs.Device, &fs.StartedAt, &fs.CompletedAt); err != nil {
			return nil, err
		}
		fs.ID, _ = uuid.Parse(idStr)
		fs.UserID, _ = uuid.Parse(userIDStr)
		fs.MediaID, _ = uuid.Parse(mediaIDStr)
		out = append(out, fs)
	}
	return out, rows.Err()
}

// ListActiveByUser backs "keep reading" surfaces.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.ActiveReadingSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, media_id, page, epubcfi, percentage, device, started_at, updated_at
		FROM active_reading_sessions WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?`,
		userID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ActiveReadingSession
	for rows.Next() {
		s := &models.ActiveReadingSession{}
		var idStr, userIDStr, mediaIDStr string
		if err := rows.Scan(&idStr, &userIDStr, &mediaIDStr, &s.Page, &s.EpubCFI, &s.Percentage,
			&s.Device, &s.StartedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.ID, _ = uuid.Parse(idStr)
		s.UserID, _ = uuid.Parse(userIDStr)
		s.MediaID, _ = uuid.Parse(mediaIDStr)
		out = append(out, s)
	}
	return out, rows.Err()
}
