package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/stump/stump/internal/apperr"
	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/repository"
)

// ThumbnailJobPayload is the asynq payload a Library Scan Job's Cleanup
// enqueues under TaskGenerateThumbnail.
type ThumbnailJobPayload struct {
	JobID     uuid.UUID `json:"job_id"`
	LibraryID uuid.UUID `json:"library_id"`
}

const taskGenerateThumbnailFor = "generate_thumbnail"

type generateThumbnailPayload struct {
	MediaID uuid.UUID `json:"media_id"`
}

// ThumbnailGenerationJob walks every Ready media row in a library and
// queues one generate_thumbnail task per row. It renders no image: this
// job only owns the enqueue contract and the per-media task fan-out the
// scan job's Cleanup depends on.
type ThumbnailGenerationJob struct {
	LibraryID uuid.UUID

	Libraries *repository.LibraryRepository
	Series    *repository.SeriesRepository
	Media     *repository.MediaRepository
}

func NewThumbnailGenerationJob(libraryID uuid.UUID, libraries *repository.LibraryRepository, series *repository.SeriesRepository, media *repository.MediaRepository) *ThumbnailGenerationJob {
	return &ThumbnailGenerationJob{LibraryID: libraryID, Libraries: libraries, Series: series, Media: media}
}

func (j *ThumbnailGenerationJob) Name() string { return "thumbnail:" + j.LibraryID.String() }

func (j *ThumbnailGenerationJob) Init(ctx context.Context) (*WorkingState, error) {
	seriesList, err := j.Series.ListByLibrary(j.LibraryID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindJobInitFailed, "list series for thumbnail job", err)
	}

	var tasks []Task
	for _, s := range seriesList {
		media, err := j.Media.ListBySeries(s.ID)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindJobInitFailed, "list media for thumbnail job", err)
		}
		for _, m := range media {
			if m.Status != models.LibraryStatusReady {
				continue
			}
			tasks = append(tasks, mustTask(taskGenerateThumbnailFor, generateThumbnailPayload{MediaID: m.ID}))
		}
	}
	return &WorkingState{Tasks: tasks}, nil
}

// ExecuteTask decodes one media item's task and logs a line for it; no
// image is rendered or written. Progress/events still flow the same way
// every other job's do.
func (j *ThumbnailGenerationJob) ExecuteTask(ctx context.Context, state *WorkingState, task Task) (*TaskOutput, error) {
	var p generateThumbnailPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return nil, apperr.Wrap(apperr.KindJobTaskFailed, "decode generate_thumbnail payload", err)
	}
	return &TaskOutput{Logs: []string{fmt.Sprintf("thumbnail queued for media %s", p.MediaID)}}, nil
}

func (j *ThumbnailGenerationJob) Cleanup(ctx context.Context, output json.RawMessage) (*EnqueueRequest, error) {
	return nil, nil
}
