package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stump/stump/internal/models"
)

// ScanRecordRepository persists one row per completed Library Scan Job,
// pairing it with the job row and the scan options that were in effect.
type ScanRecordRepository struct {
	db *sql.DB
}

func NewScanRecordRepository(db *sql.DB) *ScanRecordRepository {
	return &ScanRecordRepository{db: db}
}

func (r *ScanRecordRepository) Create(rec *models.LibraryScanRecord) error {
	optsJSON, err := json.Marshal(rec.Options)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = r.db.Exec(`
		INSERT INTO library_scan_records (id, library_id, job_id, options, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.LibraryID.String(), rec.JobID.String(), string(optsJSON), now)
	if err != nil {
		return err
	}
	rec.CreatedAt = now
	return nil
}

func (r *ScanRecordRepository) ListByLibrary(libraryID uuid.UUID, limit int) ([]*models.LibraryScanRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, library_id, job_id, options, created_at
		FROM library_scan_records WHERE library_id = ? ORDER BY created_at DESC LIMIT ?`,
		libraryID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.LibraryScanRecord
	for rows.Next() {
		var rec models.LibraryScanRecord
		var idStr, libIDStr, jobIDStr, optsJSON string
		if err := rows.Scan(&idStr, &libIDStr, &jobIDStr, &optsJSON, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.ID, _ = uuid.Parse(idStr)
		rec.LibraryID, _ = uuid.Parse(libIDStr)
		rec.JobID, _ = uuid.Parse(jobIDStr)
		_ = json.Unmarshal([]byte(optsJSON), &rec.Options)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
