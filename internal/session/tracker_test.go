package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stump/stump/internal/db"
	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/repository"
)

func TestUpdateProgress_RejectsNeitherPageNorCFI(t *testing.T) {
	tracker := NewTracker(nil, nil)
	_, err := tracker.UpdateProgress(context.Background(), uuid.New(), uuid.New(), nil, nil, 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProgressShapeInvalid)
}

func TestUpdateProgress_RejectsBothPageAndCFI(t *testing.T) {
	tracker := NewTracker(nil, nil)
	page := 3
	cfi := "epubcfi(/6/4!/4/2/2)"
	_, err := tracker.UpdateProgress(context.Background(), uuid.New(), uuid.New(), &page, &cfi, 0.5, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProgressShapeInvalid)
}

// newTrackerTestDeps seeds one library/series/media row (Pages pages) so
// UpdateProgress has something real to compare the reported page against.
func newTrackerTestDeps(t *testing.T, pages int) (*Tracker, *repository.SessionRepository, uuid.UUID) {
	t.Helper()
	conn, err := db.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(conn))

	libraries := repository.NewLibraryRepository(conn)
	series := repository.NewSeriesRepository(conn)
	media := repository.NewMediaRepository(conn)
	sessions := repository.NewSessionRepository(conn)

	lib := &models.Library{ID: uuid.New(), Name: "lib", Path: "/lib", Status: models.LibraryStatusReady}
	require.NoError(t, libraries.Create(lib))
	s := &models.Series{ID: uuid.New(), LibraryID: lib.ID, Name: "series", Path: "/lib/series", Status: models.LibraryStatusReady}
	require.NoError(t, series.Create(s))
	m := &models.Media{
		ID: uuid.New(), SeriesID: s.ID, Name: "issue-1", Extension: "cbz",
		Size: 1024, Pages: pages, Path: "/lib/series/issue-1.cbz",
		Status: models.LibraryStatusReady, ModifiedAt: time.Now().UTC(),
	}
	require.NoError(t, media.Create(m))

	return NewTracker(sessions, media), sessions, m.ID
}

func TestUpdateProgress_ReturnsActiveSessionBelowLastPage(t *testing.T) {
	tracker, sessions, mediaID := newTrackerTestDeps(t, 30)
	userID := uuid.New()
	page := 10

	result, err := tracker.UpdateProgress(context.Background(), userID, mediaID, &page, nil, 1.0/3, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Active)
	assert.Nil(t, result.Finished)
	assert.Equal(t, page, *result.Active.Page)

	active, err := sessions.GetActive(context.Background(), userID, mediaID)
	require.NoError(t, err)
	assert.NotNil(t, active)
}

// TestUpdateProgress_CompletesOnLastPage covers scenario S4: a client that
// only ever calls the progress-update endpoint, stopping after sending the
// final page, still ends up with a finished session — no separate
// /progress/complete call required.
func TestUpdateProgress_CompletesOnLastPage(t *testing.T) {
	tracker, sessions, mediaID := newTrackerTestDeps(t, 30)
	userID := uuid.New()
	page := 30

	result, err := tracker.UpdateProgress(context.Background(), userID, mediaID, &page, nil, 1.0, nil)
	require.NoError(t, err)
	require.Nil(t, result.Active)
	require.NotNil(t, result.Finished)
	assert.Equal(t, userID, result.Finished.UserID)
	assert.Equal(t, mediaID, result.Finished.MediaID)

	active, err := sessions.GetActive(context.Background(), userID, mediaID)
	require.NoError(t, err)
	assert.Nil(t, active, "active session must be retired once the last page is reached")

	completion, err := tracker.Completion(context.Background(), userID, mediaID)
	require.NoError(t, err)
	assert.True(t, completion.IsCompleted)
}

// TestUpdateProgress_PastLastPageAlsoCompletes guards against a client that
// reports a page index beyond the known page count (e.g. a miscounted
// document) still being treated as finished rather than stuck active
// forever.
func TestUpdateProgress_PastLastPageAlsoCompletes(t *testing.T) {
	tracker, sessions, mediaID := newTrackerTestDeps(t, 30)
	userID := uuid.New()
	page := 31

	result, err := tracker.UpdateProgress(context.Background(), userID, mediaID, &page, nil, 1.0, nil)
	require.NoError(t, err)
	assert.NotNil(t, result.Finished)

	active, err := sessions.GetActive(context.Background(), userID, mediaID)
	require.NoError(t, err)
	assert.Nil(t, active)
}
