package jobs

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/stump/stump/internal/apperr"
	"github.com/stump/stump/internal/events"
	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/repository"
)

// Task is one unit of work a JobType's queue holds. Concrete job types
// encode their own task shape into Kind/Payload.
type Task struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WorkingState is the resumable state persisted to a job row's
// save_state after every task.
type WorkingState struct {
	Output    json.RawMessage `json:"output"`
	Tasks     []Task          `json:"tasks"`
	Completed uint64          `json:"completed"`
	Logs      []string        `json:"logs,omitempty"`
}

// TaskOutput is what ExecuteTask returns for one Task: an updated output
// fragment to merge, zero or more follow-up subtasks, and log lines.
type TaskOutput struct {
	Output   json.RawMessage
	Subtasks []Task
	Logs     []string
}

// JobType is the generic job contract: Init produces the starting
// WorkingState, ExecuteTask advances one task at a time,
// Cleanup runs once the task queue drains and may return a follow-up job
// to enqueue.
type JobType interface {
	Name() string
	Init(ctx context.Context) (*WorkingState, error)
	ExecuteTask(ctx context.Context, state *WorkingState, task Task) (*TaskOutput, error)
	Cleanup(ctx context.Context, output json.RawMessage) (followUp *EnqueueRequest, err error)
}

// EnqueueRequest names a follow-up job a Cleanup wants started — e.g. the
// Library Scan Job's thumbnail generation enqueue point.
type EnqueueRequest struct {
	TaskType string
	Payload  interface{}
	UniqueID string
}

// Runner drives one JobType through the Queued -> Running ->
// {Completed|Failed|Cancelled} state machine, persisting
// WorkingState via JobRepository.SaveProgress after every task so a
// restart rehydrates instead of re-running Init.
type Runner struct {
	jobs     *repository.JobRepository
	queue    *Queue
	events   *events.Hub
	commands <-chan models.JobCommand
}

func NewRunner(jobs *repository.JobRepository, queue *Queue, hub *events.Hub, commands <-chan models.JobCommand) *Runner {
	return &Runner{jobs: jobs, queue: queue, events: hub, commands: commands}
}

// Run executes jobType for jobID, rehydrating WorkingState from the job's
// save_state if present (a resumed job) or calling Init otherwise.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID, jobType JobType) error {
	started := time.Now()
	record, err := r.jobs.GetByID(jobID)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, "load job", err)
	}

	state, err := r.rehydrateOrInit(ctx, record, jobType)
	if err != nil {
		_ = r.jobs.Complete(jobID, models.JobFailed, nil)
		return apperr.Wrap(apperr.KindJobInitFailed, "job init failed", err)
	}

	if err := r.jobs.SaveProgress(jobID, models.JobRunning, mustMarshal(state), state.Output, elapsedMs(started)); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, "save initial state", err)
	}

	for len(state.Tasks) > 0 {
		if cmd, ok := r.pollCommand(); ok {
			switch cmd {
			case models.JobCommandCancel:
				return r.finish(jobID, models.JobCancelled, state, started)
			case models.JobCommandPause:
				return r.finish(jobID, models.JobPaused, state, started)
			}
		}

		task := state.Tasks[0]
		state.Tasks = state.Tasks[1:]

		out, taskErr := jobType.ExecuteTask(ctx, state, task)
		if taskErr != nil {
			log.Printf("Job: task %s failed for job %s: %v", task.Kind, jobID, taskErr)
			state.Logs = append(state.Logs, taskErr.Error())
			if err := r.jobs.SaveProgress(jobID, models.JobRunning, mustMarshal(state), state.Output, elapsedMs(started)); err != nil {
				return apperr.Wrap(apperr.KindDatabaseError, "save state after task error", err)
			}
			continue
		}

		if out.Output != nil {
			state.Output = out.Output
		}
		state.Tasks = append(state.Tasks, out.Subtasks...)
		state.Completed++
		state.Logs = append(state.Logs, out.Logs...)

		r.emitProgress(jobID, state)

		if err := r.jobs.SaveProgress(jobID, models.JobRunning, mustMarshal(state), state.Output, elapsedMs(started)); err != nil {
			return apperr.Wrap(apperr.KindDatabaseError, "save state after task", err)
		}
	}

	followUp, err := jobType.Cleanup(ctx, state.Output)
	if err != nil {
		return r.finish(jobID, models.JobFailed, state, started)
	}
	if followUp != nil && r.queue != nil {
		if _, enqErr := r.queue.EnqueueUnique(followUp.TaskType, followUp.Payload, followUp.UniqueID); enqErr != nil {
			log.Printf("Job: follow-up enqueue failed for job %s: %v", jobID, enqErr)
		}
	}
	return r.finish(jobID, models.JobCompleted, state, started)
}

func (r *Runner) rehydrateOrInit(ctx context.Context, record *models.Job, jobType JobType) (*WorkingState, error) {
	if len(record.SaveState) > 0 {
		var state WorkingState
		if err := json.Unmarshal(record.SaveState, &state); err == nil {
			return &state, nil
		}
	}
	return jobType.Init(ctx)
}

func (r *Runner) pollCommand() (models.JobCommand, bool) {
	if r.commands == nil {
		return "", false
	}
	select {
	case cmd := <-r.commands:
		return cmd, true
	default:
		return "", false
	}
}

func (r *Runner) emitProgress(jobID uuid.UUID, state *WorkingState) {
	if r.events == nil {
		return
	}
	total := state.Completed + uint64(len(state.Tasks))
	msg := ""
	if len(state.Logs) > 0 {
		msg = state.Logs[len(state.Logs)-1]
	}
	r.events.Publish(events.JobProgressEvent(models.JobProgress{
		JobID:           jobID,
		SubtaskPosition: int(state.Completed),
		Total:           int(total),
		Message:         msg,
	}))
}

func (r *Runner) finish(jobID uuid.UUID, status models.JobStatus, state *WorkingState, started time.Time) error {
	if err := r.jobs.SaveProgress(jobID, status, mustMarshal(state), state.Output, elapsedMs(started)); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, "save final state", err)
	}
	if status == models.JobCompleted || status == models.JobFailed || status == models.JobCancelled {
		return r.jobs.Complete(jobID, status, state.Output)
	}
	return nil
}

func mustMarshal(state *WorkingState) []byte {
	data, err := json.Marshal(state)
	if err != nil {
		return nil
	}
	return data
}

func elapsedMs(started time.Time) int64 {
	return time.Since(started).Milliseconds()
}
