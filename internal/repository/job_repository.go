package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stump/stump/internal/models"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *models.Job) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO jobs (id, name, status, save_state, output_data, elapsed_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.Name, job.Status, jsonOrNil(job.SaveState), jsonOrNil(job.OutputData),
		job.ElapsedMs, now, now)
	if err != nil {
		return err
	}
	job.CreatedAt, job.UpdatedAt = now, now
	return nil
}

// SaveProgress persists WorkingState between tasks, the durable half of
// the Job Framework's resumability contract.
func (r *JobRepository) SaveProgress(id uuid.UUID, status models.JobStatus, saveState, outputData []byte, elapsedMs int64) error {
	_, err := r.db.Exec(`
		UPDATE jobs SET status = ?, save_state = ?, output_data = ?, elapsed_ms = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		status, jsonOrNil(saveState), jsonOrNil(outputData), elapsedMs, id.String())
	return err
}

func (r *JobRepository) Complete(id uuid.UUID, status models.JobStatus, outputData []byte) error {
	_, err := r.db.Exec(`
		UPDATE jobs SET status = ?, output_data = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		status, jsonOrNil(outputData), id.String())
	return err
}

func (r *JobRepository) GetByID(id uuid.UUID) (*models.Job, error) {
	job, err := scanJob(r.db.QueryRow(`
		SELECT id, name, status, save_state, output_data, elapsed_ms, created_at, updated_at, completed_at
		FROM jobs WHERE id = ?`, id.String()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	return job, err
}

func (r *JobRepository) ListRecent(limit int) ([]*models.Job, error) {
	rows, err := r.db.Query(`
		SELECT id, name, status, save_state, output_data, elapsed_ms, created_at, updated_at, completed_at
		FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row interface{ Scan(dest ...interface{}) error }) (*models.Job, error) {
	job := &models.Job{}
	var idStr string
	var saveState, outputData sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&idStr, &job.Name, &job.Status, &saveState, &outputData, &job.ElapsedMs,
		&job.CreatedAt, &job.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	job.ID = id
	if saveState.Valid {
		job.SaveState = []byte(saveState.String)
	}
	if outputData.Valid {
		job.OutputData = []byte(outputData.String)
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

func jsonOrNil(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// ──── Job schedules ────

type JobScheduleRepository struct {
	db *sql.DB
}

func NewJobScheduleRepository(db *sql.DB) *JobScheduleRepository {
	return &JobScheduleRepository{db: db}
}

func (r *JobScheduleRepository) Create(cfg *models.JobScheduleConfig) error {
	_, err := r.db.Exec(`
		INSERT INTO job_schedule_configs (id, library_id, cron_expr, enabled)
		VALUES (?, ?, ?, ?)`,
		cfg.ID.String(), cfg.LibraryID.String(), cfg.CronExpr, cfg.Enabled)
	return err
}

func (r *JobScheduleRepository) ListEnabled() ([]*models.JobScheduleConfig, error) {
	rows, err := r.db.Query(`SELECT id, library_id, cron_expr, enabled, last_fired_at FROM job_schedule_configs WHERE enabled = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.JobScheduleConfig
	for rows.Next() {
		cfg := &models.JobScheduleConfig{}
		var idStr, libIDStr string
		var lastFired sql.NullTime
		if err := rows.Scan(&idStr, &libIDStr, &cfg.CronExpr, &cfg.Enabled, &lastFired); err != nil {
			return nil, err
		}
		cfg.ID, _ = uuid.Parse(idStr)
		cfg.LibraryID, _ = uuid.Parse(libIDStr)
		if lastFired.Valid {
			t := lastFired.Time
			cfg.LastFiredAt = &t
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (r *JobScheduleRepository) MarkFired(id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(`UPDATE job_schedule_configs SET last_fired_at = ? WHERE id = ?`, at, id.String())
	return err
}

func (r *JobScheduleRepository) Delete(id uuid.UUID) error {
	_, err := r.db.Exec(`DELETE FROM job_schedule_configs WHERE id = ?`, id.String())
	return err
}
