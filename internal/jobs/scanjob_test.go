package jobs

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stump/stump/internal/db"
	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/repository"
)

type scanTestRepos struct {
	libraries *repository.LibraryRepository
	series    *repository.SeriesRepository
	media     *repository.MediaRepository
	scans     *repository.ScanRecordRepository
	jobs      *repository.JobRepository
}

func newScanTestRepos(t *testing.T) *scanTestRepos {
	t.Helper()
	conn, err := db.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(conn))

	return &scanTestRepos{
		libraries: repository.NewLibraryRepository(conn),
		series:    repository.NewSeriesRepository(conn),
		media:     repository.NewMediaRepository(conn),
		scans:     repository.NewScanRecordRepository(conn),
		jobs:      repository.NewJobRepository(conn),
	}
}

func writeCBZ(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func createTestLibrary(t *testing.T, repos *scanTestRepos, path string, cfg models.LibraryConfig) *models.Library {
	t.Helper()
	lib := &models.Library{
		ID:     uuid.New(),
		Name:   "Test Library",
		Path:   path,
		Status: models.LibraryStatusReady,
		Config: cfg,
	}
	require.NoError(t, repos.libraries.Create(lib))
	return lib
}

func createQueuedScanJob(t *testing.T, repos *scanTestRepos) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, repos.jobs.Create(&models.Job{ID: id, Name: "scan", Status: models.JobQueued}))
	return id
}

// runScanJob drives a ScanLibraryJob through the generic Runner exactly as
// the queue handlers do, so these tests exercise the same path production
// traffic takes.
func runScanJob(t *testing.T, repos *scanTestRepos, jobID uuid.UUID, job *ScanLibraryJob) {
	t.Helper()
	runner := NewRunner(repos.jobs, nil, nil, nil)
	err := runner.Run(context.Background(), jobID, job)
	require.NoError(t, err)
}

func TestScanLibraryJob_Init_FatalWhenLibraryRootMissing(t *testing.T) {
	repos := newScanTestRepos(t)
	root := filepath.Join(t.TempDir(), "gone")
	lib := createTestLibrary(t, repos, root, models.LibraryConfig{})
	jobID := createQueuedScanJob(t, repos)

	job := NewScanLibraryJob(lib.ID, jobID, models.ScanOptions{}, repos.libraries, repos.series, repos.media, repos.scans, repos.jobs)
	runner := NewRunner(repos.jobs, nil, nil, nil)
	err := runner.Run(context.Background(), jobID, job)
	assert.Error(t, err)

	updated, err := repos.libraries.GetByID(lib.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LibraryStatusMissing, updated.Status)
}

func TestScanLibraryJob_Init_MarksExistingSeriesMissingWhenGoneFromDisk(t *testing.T) {
	repos := newScanTestRepos(t)
	root := t.TempDir()
	lib := createTestLibrary(t, repos, root, models.LibraryConfig{})

	stale := &models.Series{ID: uuid.New(), LibraryID: lib.ID, Name: "Vanished", Path: filepath.Join(root, "Vanished"), Status: models.LibraryStatusReady}
	require.NoError(t, repos.series.Create(stale))

	jobID := createQueuedScanJob(t, repos)
	job := NewScanLibraryJob(lib.ID, jobID, models.ScanOptions{}, repos.libraries, repos.series, repos.media, repos.scans, repos.jobs)
	runScanJob(t, repos, jobID, job)

	updated, err := repos.series.GetByID(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LibraryStatusMissing, updated.Status)
}

func TestScanLibraryJob_FullRun_CreatesSeriesAndMedia(t *testing.T) {
	repos := newScanTestRepos(t)
	root := t.TempDir()
	writeCBZ(t, filepath.Join(root, "Series A", "001.cbz"), map[string]string{"001.jpg": "page-one"})
	writeCBZ(t, filepath.Join(root, "Series A", "002.cbz"), map[string]string{"001.jpg": "page-two"})

	lib := createTestLibrary(t, repos, root, models.LibraryConfig{LibraryPattern: models.PatternCollectionBased})
	jobID := createQueuedScanJob(t, repos)
	job := NewScanLibraryJob(lib.ID, jobID, models.ScanOptions{}, repos.libraries, repos.series, repos.media, repos.scans, repos.jobs)
	runScanJob(t, repos, jobID, job)

	series, err := repos.series.ListByLibrary(lib.ID)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "Series A", series[0].Name)
	assert.Equal(t, models.LibraryStatusReady, series[0].Status)

	media, err := repos.media.ListBySeries(series[0].ID)
	require.NoError(t, err)
	assert.Len(t, media, 2)

	record, err := repos.jobs.GetByID(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, record.Status)
}

func TestScanLibraryJob_FullRun_GeneratesHashesWhenConfigured(t *testing.T) {
	repos := newScanTestRepos(t)
	root := t.TempDir()
	writeCBZ(t, filepath.Join(root, "Series A", "001.cbz"), map[string]string{"001.jpg": "page-one"})

	lib := createTestLibrary(t, repos, root, models.LibraryConfig{
		LibraryPattern:       models.PatternCollectionBased,
		GenerateStumpHash:    true,
		GenerateKoreaderHash: true,
	})
	jobID := createQueuedScanJob(t, repos)
	job := NewScanLibraryJob(lib.ID, jobID, models.ScanOptions{}, repos.libraries, repos.series, repos.media, repos.scans, repos.jobs)
	runScanJob(t, repos, jobID, job)

	series, err := repos.series.ListByLibrary(lib.ID)
	require.NoError(t, err)
	require.Len(t, series, 1)
	media, err := repos.media.ListBySeries(series[0].ID)
	require.NoError(t, err)
	require.Len(t, media, 1)
	require.NotNil(t, media[0].StumpHash)
	require.NotNil(t, media[0].KoreaderHash)
	assert.NotEmpty(t, *media[0].StumpHash)
	assert.NotEmpty(t, *media[0].KoreaderHash)
}

func TestScanLibraryJob_RescanRecoversMissingMedia(t *testing.T) {
	repos := newScanTestRepos(t)
	root := t.TempDir()
	mediaPath := filepath.Join(root, "Series A", "001.cbz")
	writeCBZ(t, mediaPath, map[string]string{"001.jpg": "page-one"})

	lib := createTestLibrary(t, repos, root, models.LibraryConfig{LibraryPattern: models.PatternCollectionBased})
	jobID1 := createQueuedScanJob(t, repos)
	job1 := NewScanLibraryJob(lib.ID, jobID1, models.ScanOptions{}, repos.libraries, repos.series, repos.media, repos.scans, repos.jobs)
	runScanJob(t, repos, jobID1, job1)

	series, err := repos.series.ListByLibrary(lib.ID)
	require.NoError(t, err)
	require.Len(t, series, 1)
	media, err := repos.media.ListBySeries(series[0].ID)
	require.NoError(t, err)
	require.Len(t, media, 1)

	require.NoError(t, os.Remove(mediaPath))
	jobID2 := createQueuedScanJob(t, repos)
	job2 := NewScanLibraryJob(lib.ID, jobID2, models.ScanOptions{}, repos.libraries, repos.series, repos.media, repos.scans, repos.jobs)
	runScanJob(t, repos, jobID2, job2)

	gone, err := repos.media.GetByID(media[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.LibraryStatusMissing, gone.Status)

	writeCBZ(t, mediaPath, map[string]string{"001.jpg": "page-one"})
	jobID3 := createQueuedScanJob(t, repos)
	job3 := NewScanLibraryJob(lib.ID, jobID3, models.ScanOptions{}, repos.libraries, repos.series, repos.media, repos.scans, repos.jobs)
	runScanJob(t, repos, jobID3, job3)

	recovered, err := repos.media.GetByID(media[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.LibraryStatusReady, recovered.Status)
}

func TestScanLibraryJob_Cleanup_EnqueuesThumbnailJobWhenConfigured(t *testing.T) {
	repos := newScanTestRepos(t)
	root := t.TempDir()
	writeCBZ(t, filepath.Join(root, "Series A", "001.cbz"), map[string]string{"001.jpg": "page-one"})

	lib := createTestLibrary(t, repos, root, models.LibraryConfig{
		LibraryPattern:  models.PatternCollectionBased,
		ThumbnailFormat: "webp",
	})
	jobID := createQueuedScanJob(t, repos)
	job := NewScanLibraryJob(lib.ID, jobID, models.ScanOptions{}, repos.libraries, repos.series, repos.media, repos.scans, repos.jobs)

	enqueued, err := runScanJobCapturingFollowUp(t, repos, jobID, job)
	require.NoError(t, err)
	require.NotNil(t, enqueued)
	assert.Equal(t, TaskGenerateThumbnail, enqueued.TaskType)

	var payload ThumbnailJobPayload
	data, err := json.Marshal(enqueued.Payload)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.NotEqual(t, uuid.Nil, payload.JobID)
	assert.Equal(t, lib.ID, payload.LibraryID)

	records, err := repos.scans.ListByLibrary(lib.ID, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	updatedLib, err := repos.libraries.GetByID(lib.ID)
	require.NoError(t, err)
	assert.NotNil(t, updatedLib.LastScannedAt)
}

func TestScanLibraryJob_Cleanup_NoThumbnailJobWhenFormatUnset(t *testing.T) {
	repos := newScanTestRepos(t)
	root := t.TempDir()
	writeCBZ(t, filepath.Join(root, "Series A", "001.cbz"), map[string]string{"001.jpg": "page-one"})

	lib := createTestLibrary(t, repos, root, models.LibraryConfig{LibraryPattern: models.PatternCollectionBased})
	jobID := createQueuedScanJob(t, repos)
	job := NewScanLibraryJob(lib.ID, jobID, models.ScanOptions{}, repos.libraries, repos.series, repos.media, repos.scans, repos.jobs)

	enqueued, err := runScanJobCapturingFollowUp(t, repos, jobID, job)
	require.NoError(t, err)
	assert.Nil(t, enqueued)
}

// runScanJobCapturingFollowUp drives Init/ExecuteTask manually to recover
// Cleanup's EnqueueRequest, which Runner.Run consumes internally without
// exposing.
func runScanJobCapturingFollowUp(t *testing.T, repos *scanTestRepos, jobID uuid.UUID, job *ScanLibraryJob) (*EnqueueRequest, error) {
	t.Helper()
	ctx := context.Background()

	state, err := job.Init(ctx)
	if err != nil {
		return nil, err
	}
	for uint64(len(state.Tasks)) > state.Completed {
		task := state.Tasks[state.Completed]
		out, err := job.ExecuteTask(ctx, state, task)
		if err != nil {
			return nil, err
		}
		if out != nil {
			state.Output = out.Output
			state.Tasks = append(state.Tasks, out.Subtasks...)
			state.Logs = append(state.Logs, out.Logs...)
		}
		state.Completed++
	}
	return job.Cleanup(ctx, state.Output)
}
