package walker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestWalkLibrary_MissingRoot(t *testing.T) {
	result, err := WalkLibrary(filepath.Join(t.TempDir(), "nope"), nil, WalkConfig{Pattern: CollectionBased})
	require.NoError(t, err)
	assert.True(t, result.LibraryIsMissing)
}

func TestWalkLibrary_CollectionBased_DirectChildrenAreSeries(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{
		"Series A/issue1.cbz": "x",
		"Series B/issue1.cbz": "x",
		"not-a-dir.txt":       "x",
	})

	result, err := WalkLibrary(root, nil, WalkConfig{Pattern: CollectionBased})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "Series A"),
		filepath.Join(root, "Series B"),
	}, result.SeriesToCreate)
}

func TestWalkLibrary_RootWithMediaIsItsOwnSeries(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{
		"issue1.cbz": "x",
	})

	result, err := WalkLibrary(root, nil, WalkConfig{Pattern: CollectionBased})
	require.NoError(t, err)
	assert.Equal(t, []string{root}, result.SeriesToCreate)
}

func TestWalkLibrary_SeriesBased_NestedDirsWithMedia(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{
		"Publisher/Series A/issue1.cbz": "x",
		"Publisher/Series B/issue1.cbz": "x",
	})

	result, err := WalkLibrary(root, nil, WalkConfig{Pattern: SeriesBased})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "Publisher/Series A"),
		filepath.Join(root, "Publisher/Series B"),
	}, result.SeriesToCreate)
}

func TestWalkLibrary_DetectsMissingSeries(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{
		"Series A/issue1.cbz": "x",
	})
	goneID := uuid.New()
	existing := map[string]ExistingSeries{
		filepath.Join(root, "Series A"):    {ID: uuid.New(), Status: "Ready"},
		filepath.Join(root, "Series Gone"): {ID: goneID, Status: "Ready"},
	}

	result, err := WalkLibrary(root, existing, WalkConfig{Pattern: CollectionBased})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "Series Gone")}, result.MissingSeries)
	assert.Equal(t, []string{filepath.Join(root, "Series A")}, result.SeriesToVisit)
}

func TestWalkLibrary_RecoversMissingSeries(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{
		"Series A/issue1.cbz": "x",
	})
	id := uuid.New()
	existing := map[string]ExistingSeries{
		filepath.Join(root, "Series A"): {ID: id, Status: "Missing"},
	}

	result, err := WalkLibrary(root, existing, WalkConfig{Pattern: CollectionBased})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, result.RecoveredSeries)
}

func TestWalkSeries_MissingDir(t *testing.T) {
	result, err := WalkSeries(filepath.Join(t.TempDir(), "nope"), "", nil, WalkConfig{Pattern: CollectionBased})
	require.NoError(t, err)
	assert.True(t, result.SeriesIsMissing)
}

func TestWalkSeries_DiscoversNewMedia(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{
		"issue1.cbz": "x",
		"issue2.cbz": "x",
		"readme.txt": "x",
	})

	result, err := WalkSeries(root, root, nil, WalkConfig{Pattern: CollectionBased})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "issue1.cbz"),
		filepath.Join(root, "issue2.cbz"),
	}, result.MediaToCreate)
}

func TestWalkSeries_StaleMtimeRevisit(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{"issue1.cbz": "x"})
	p := filepath.Join(root, "issue1.cbz")
	id := uuid.New()
	existing := map[string]ExistingMedia{
		p: {ID: id, ModifiedAt: time.Now().Add(-24 * time.Hour), Status: "Ready"},
	}

	result, err := WalkSeries(root, root, existing, WalkConfig{Pattern: CollectionBased})
	require.NoError(t, err)
	require.Len(t, result.MediaToVisit, 1)
	assert.Equal(t, "stale_mtime", result.MediaToVisit[0].Reason)
	assert.Equal(t, id, result.MediaToVisit[0].ID)
}

func TestWalkSeries_UnchangedFileIsSkipped(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{"issue1.cbz": "x"})
	p := filepath.Join(root, "issue1.cbz")
	id := uuid.New()
	existing := map[string]ExistingMedia{
		p: {ID: id, ModifiedAt: time.Now().Add(1 * time.Hour), Status: "Ready"},
	}

	result, err := WalkSeries(root, root, existing, WalkConfig{Pattern: CollectionBased})
	require.NoError(t, err)
	assert.Empty(t, result.MediaToVisit)
	assert.Equal(t, uint64(1), result.SkippedFiles)
}

func TestWalkSeries_ForceRescanRevisitsEvenWhenUnchanged(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{"issue1.cbz": "x"})
	p := filepath.Join(root, "issue1.cbz")
	id := uuid.New()
	existing := map[string]ExistingMedia{
		p: {ID: id, ModifiedAt: time.Now().Add(1 * time.Hour), Status: "Ready"},
	}

	result, err := WalkSeries(root, root, existing, WalkConfig{Pattern: CollectionBased, Options: ScanOptions{ForceRescan: true}})
	require.NoError(t, err)
	require.Len(t, result.MediaToVisit, 1)
	assert.Equal(t, "forced", result.MediaToVisit[0].Reason)
}

func TestWalkSeries_DetectsMissingMedia(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{"issue1.cbz": "x"})
	goneID := uuid.New()
	existing := map[string]ExistingMedia{
		filepath.Join(root, "issue-gone.cbz"): {ID: goneID, ModifiedAt: time.Now()},
	}

	result, err := WalkSeries(root, root, existing, WalkConfig{Pattern: CollectionBased})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "issue-gone.cbz")}, result.MissingMedia)
}

func TestWalkSeries_SeriesBasedBoundsDescentToDirectChildren(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{
		"issue1.cbz":              "x",
		"nested-series/issue2.cbz": "x",
	})

	result, err := WalkSeries(root, "/some/other/library", nil, WalkConfig{Pattern: SeriesBased})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "issue1.cbz")}, result.MediaToCreate)
}

func TestWalkSeries_CollectionBasedDescendsIntoSubfolders(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{
		"issue1.cbz":               "x",
		"extras/issue2.cbz":        "x",
	})

	result, err := WalkSeries(root, "/some/other/library", nil, WalkConfig{Pattern: CollectionBased})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "issue1.cbz"),
		filepath.Join(root, "extras/issue2.cbz"),
	}, result.MediaToCreate)
}
