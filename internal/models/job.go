package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the Job Framework state machine:
// Queued -> Running -> {Completed|Failed|Cancelled}, Running <-> Paused.
type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobPaused    JobStatus = "PAUSED"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Job is one executed job row.
type Job struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Status      JobStatus       `json:"status" db:"status"`
	SaveState   json.RawMessage `json:"save_state,omitempty" db:"save_state"`
	OutputData  json.RawMessage `json:"output_data,omitempty" db:"output_data"`
	ElapsedMs   int64           `json:"elapsed_ms" db:"elapsed_ms"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// JobCommand is sent down a job's command channel.
type JobCommand string

const (
	JobCommandPause  JobCommand = "PAUSE"
	JobCommandResume JobCommand = "RESUME"
	JobCommandCancel JobCommand = "CANCEL"
)

// JobProgress is broadcast to HTTP/SSE and WebSocket consumers while a job
// runs.
type JobProgress struct {
	JobID           uuid.UUID `json:"job_id"`
	SubtaskPosition int       `json:"subtask_position"`
	Total           int       `json:"total"`
	Message         string    `json:"message"`
}

// JobScheduleConfig configures a recurring scan for a library.
type JobScheduleConfig struct {
	ID          uuid.UUID `json:"id" db:"id"`
	LibraryID   uuid.UUID `json:"library_id" db:"library_id"`
	CronExpr    string    `json:"cron_expr" db:"cron_expr"`
	Enabled     bool      `json:"enabled" db:"enabled"`
	LastFiredAt *time.Time `json:"last_fired_at,omitempty" db:"last_fired_at"`
}
