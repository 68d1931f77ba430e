package jobs

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/repository"
)

// scanPayload is the wire shape both handleScanLibrary (REST) and the
// Library Watcher enqueue under TaskScanLibrary.
type scanPayload struct {
	JobID     string             `json:"job_id"`
	LibraryID string             `json:"library_id"`
	Options   models.ScanOptions `json:"options"`
}

type thumbnailPayload struct {
	JobID     string `json:"job_id"`
	LibraryID string `json:"library_id"`
}

// RegisterHandlers wires every JobType this server knows how to run onto
// the asynq task types their enqueue points already use, called once at
// startup with every repository a task handler might need, rather than
// giving each task type its own ad-hoc registration call.
func RegisterHandlers(queue *Queue, runner *Runner, libraries *repository.LibraryRepository,
	series *repository.SeriesRepository, media *repository.MediaRepository,
	scans *repository.ScanRecordRepository, jobRepo *repository.JobRepository) {

	queue.RegisterHandler(TaskScanLibrary, asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var p scanPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		jobID, err := uuid.Parse(p.JobID)
		if err != nil {
			return err
		}
		libraryID, err := uuid.Parse(p.LibraryID)
		if err != nil {
			return err
		}
		job := NewScanLibraryJob(libraryID, jobID, p.Options, libraries, series, media, scans, jobRepo)
		return runner.Run(ctx, jobID, job)
	}))

	queue.RegisterHandler(TaskGenerateThumbnail, asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var p thumbnailPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		jobID, err := uuid.Parse(p.JobID)
		if err != nil {
			return err
		}
		libraryID, err := uuid.Parse(p.LibraryID)
		if err != nil {
			return err
		}
		job := NewThumbnailGenerationJob(libraryID, libraries, series, media)
		return runner.Run(ctx, jobID, job)
	}))
}
