package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stump/stump/internal/db"
	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/repository"
)

func newTestJobRepo(t *testing.T) *repository.JobRepository {
	t.Helper()
	conn, err := db.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(conn))
	return repository.NewJobRepository(conn)
}

// countingJob is a minimal JobType that runs a fixed number of no-op tasks
// then records whatever Cleanup receives.
type countingJob struct {
	taskCount   int
	cleanupErr  error
	followUp    *EnqueueRequest
	cleanupOut  json.RawMessage
	executeErrs map[int]error
	executed    int
}

func (j *countingJob) Name() string { return "counting-job" }

func (j *countingJob) Init(ctx context.Context) (*WorkingState, error) {
	tasks := make([]Task, j.taskCount)
	for i := range tasks {
		tasks[i] = Task{Kind: "noop"}
	}
	return &WorkingState{Tasks: tasks}, nil
}

func (j *countingJob) ExecuteTask(ctx context.Context, state *WorkingState, task Task) (*TaskOutput, error) {
	idx := j.executed
	j.executed++
	if err, ok := j.executeErrs[idx]; ok {
		return nil, err
	}
	return &TaskOutput{Logs: []string{"did task"}}, nil
}

func (j *countingJob) Cleanup(ctx context.Context, output json.RawMessage) (*EnqueueRequest, error) {
	j.cleanupOut = output
	return j.followUp, j.cleanupErr
}

func createQueuedJob(t *testing.T, repo *repository.JobRepository) uuid.UUID {
	t.Helper()
	id := uuid.New()
	job := &models.Job{ID: id, Name: "test-job", Status: models.JobQueued}
	require.NoError(t, repo.Create(job))
	return id
}

func TestRunner_Run_CompletesAllTasks(t *testing.T) {
	repo := newTestJobRepo(t)
	runner := NewRunner(repo, nil, nil, nil)
	jobID := createQueuedJob(t, repo)

	job := &countingJob{taskCount: 3}
	err := runner.Run(context.Background(), jobID, job)
	require.NoError(t, err)
	assert.Equal(t, 3, job.executed)

	record, err := repo.GetByID(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, record.Status)
	require.NotNil(t, record.CompletedAt)
}

func TestRunner_Run_TaskErrorIsLoggedAndJobContinues(t *testing.T) {
	repo := newTestJobRepo(t)
	runner := NewRunner(repo, nil, nil, nil)
	jobID := createQueuedJob(t, repo)

	job := &countingJob{taskCount: 3, executeErrs: map[int]error{1: assert.AnError}}
	err := runner.Run(context.Background(), jobID, job)
	require.NoError(t, err)

	record, err := repo.GetByID(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, record.Status)

	var state WorkingState
	require.NoError(t, json.Unmarshal(record.SaveState, &state))
	assert.Contains(t, state.Logs, assert.AnError.Error())
}

func TestRunner_Run_CompletesWithQueueAndNoFollowUp(t *testing.T) {
	repo := newTestJobRepo(t)
	queue := NewQueue("") // no real redis required unless Client() is used
	runner := NewRunner(repo, queue, nil, nil)
	jobID := createQueuedJob(t, repo)

	job := &countingJob{taskCount: 1, followUp: nil}
	err := runner.Run(context.Background(), jobID, job)
	require.NoError(t, err)

	record, err := repo.GetByID(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, record.Status)
}

func TestRunner_Run_UnknownJobIDFails(t *testing.T) {
	repo := newTestJobRepo(t)
	runner := NewRunner(repo, nil, nil, nil)

	job := &countingJob{taskCount: 1}
	err := runner.Run(context.Background(), uuid.New(), job)
	assert.Error(t, err)
}

func TestRunner_Run_RehydratesFromSaveState(t *testing.T) {
	repo := newTestJobRepo(t)
	runner := NewRunner(repo, nil, nil, nil)
	jobID := createQueuedJob(t, repo)

	// Pre-seed save_state as if a prior run had one task left.
	state := WorkingState{Tasks: []Task{{Kind: "noop"}}, Completed: 2}
	data, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, repo.SaveProgress(jobID, models.JobRunning, data, nil, 0))

	job := &countingJob{taskCount: 5} // Init would create 5 tasks, but rehydration should win
	err = runner.Run(context.Background(), jobID, job)
	require.NoError(t, err)
	assert.Equal(t, 1, job.executed, "rehydrated state should only run the one remaining task")
}
