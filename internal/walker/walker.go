// Package walker implements a two-phase directory traversal: a library
// walk that discovers series directories, and a series walk that
// discovers media files within one series. Bounded concurrency for the
// stat calls uses a numWorkers-buffered-channel pattern.
package walker

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stump/stump/internal/ignore"
)

// LibraryPattern selects the depth policy for both walk phases.
type LibraryPattern string

const (
	CollectionBased LibraryPattern = "CollectionBased"
	SeriesBased     LibraryPattern = "SeriesBased"
)

// ScanOptions controls revisit behavior, per the glossary's "Scan Options".
type ScanOptions struct {
	ForceRescan bool
}

// MediaExtensions is the set of file extensions the walker treats as
// media, used to decide whether a directory "has media" (and therefore
// counts as a series) and whether an individual file is a candidate.
var MediaExtensions = map[string]bool{
	".cbz": true, ".cbr": true, ".zip": true, ".rar": true,
	".epub": true, ".pdf": true,
}

// ExistingSeries is the walker's view of an already-known series row,
// supplied by the caller so this package never imports the repository
// layer directly.
type ExistingSeries struct {
	ID     uuid.UUID
	Status string // "Ready" | "Missing" | "Unsupported"
}

// ExistingMedia is the walker's view of an already-known media row.
type ExistingMedia struct {
	ID         uuid.UUID
	ModifiedAt time.Time
	Status     string
}

// WalkedLibrary is the result of a library walk.
type WalkedLibrary struct {
	SeriesToCreate       []string
	SeriesToVisit        []string
	MissingSeries        []string
	RecoveredSeries      []uuid.UUID
	LibraryIsMissing     bool
	SeenDirectories      uint64
	IgnoredDirectories   uint64
}

// MediaVisit names why an existing media row needs revisiting.
type MediaVisit struct {
	ID     uuid.UUID
	Path   string
	Reason string // "stale_mtime" | "forced"
}

// WalkedSeries is the result of a series walk.
type WalkedSeries struct {
	SeriesIsMissing bool
	MediaToCreate   []string
	MediaToVisit    []MediaVisit
	RecoveredMedia  []uuid.UUID
	MissingMedia    []string
	SeenFiles       uint64
	IgnoredFiles    uint64
	SkippedFiles    uint64
}

// WalkConfig bundles the parameters the design names for both walk phases.
type WalkConfig struct {
	Pattern     LibraryPattern
	IgnoreRules *ignore.Matcher
	Options     ScanOptions
	Concurrency int // max_scanner_concurrency; 0 defaults to 8
}

func (c WalkConfig) workers() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return 8
}

// WalkLibrary discovers series directories under root. CollectionBased
// libraries treat every direct child directory as a series root
// (max_depth=1); SeriesBased libraries treat every directory containing
// media, at any depth, as its own series. In both patterns, a library
// root that directly contains media files is itself a series.
func WalkLibrary(root string, existing map[string]ExistingSeries, cfg WalkConfig) (WalkedLibrary, error) {
	var result WalkedLibrary

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			result.LibraryIsMissing = true
			return result, nil
		}
		return result, err
	}
	if !info.IsDir() {
		result.LibraryIsMissing = true
		return result, nil
	}

	seriesDirs, seen, ignored, err := discoverSeriesDirs(root, cfg)
	if err != nil {
		return result, err
	}
	result.SeenDirectories = seen
	result.IgnoredDirectories = ignored

	foundPaths := make(map[string]bool, len(seriesDirs))
	for _, p := range seriesDirs {
		foundPaths[p] = true
		ex, known := existing[p]
		switch {
		case !known:
			result.SeriesToCreate = append(result.SeriesToCreate, p)
		case ex.Status == "Missing":
			result.RecoveredSeries = append(result.RecoveredSeries, ex.ID)
			result.SeriesToVisit = append(result.SeriesToVisit, p)
		default:
			result.SeriesToVisit = append(result.SeriesToVisit, p)
		}
	}
	for p := range existing {
		if !foundPaths[p] {
			result.MissingSeries = append(result.MissingSeries, p)
		}
	}

	sort.Strings(result.SeriesToCreate)
	sort.Strings(result.SeriesToVisit)
	sort.Strings(result.MissingSeries)
	return result, nil
}

// discoverSeriesDirs walks root and returns directory paths that qualify
// as series roots under cfg.Pattern.
func discoverSeriesDirs(root string, cfg WalkConfig) (dirs []string, seen, ignored uint64, err error) {
	rootHasMedia, err := dirHasMedia(root)
	if err != nil {
		return nil, 0, 0, err
	}
	if rootHasMedia {
		// The root is a series of its own; its subdirectories are still
		// discovered below under the library's pattern.
		dirs = append(dirs, root)
		seen++
	}

	if cfg.Pattern == CollectionBased {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, 0, 0, err
		}
		for _, e := range entries {
			seen++
			if !e.IsDir() {
				continue
			}
			childPath := filepath.Join(root, e.Name())
			if matches(cfg.IgnoreRules, root, childPath) {
				ignored++
				continue
			}
			dirs = append(dirs, childPath)
		}
		return dirs, seen, ignored, nil
	}

	// SeriesBased: every directory with media, at any depth, is a series.
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path == root {
			return nil
		}
		seen++
		if matches(cfg.IgnoreRules, root, path) {
			ignored++
			return filepath.SkipDir
		}
		has, herr := dirHasMedia(path)
		if herr != nil {
			return nil
		}
		if has {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, seen, ignored, err
}

func dirHasMedia(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if MediaExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			return true, nil
		}
	}
	return false, nil
}

func matches(m *ignore.Matcher, root, path string) bool {
	if m == nil || m.Empty() {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return m.Match(rel)
}

// statJob is one candidate file queued for concurrent stat-and-classify.
type statJob struct {
	path string
	name string
}

// WalkSeries discovers media files within a series directory. The
// series-local recursion depth mirrors the inverted policy: in a
// SeriesBased library, descent is bounded to direct children (nested
// directories are their own series, discovered separately by
// WalkLibrary); in a CollectionBased library, descent is unbounded (a
// series may organize its issues/chapters into subfolders). The
// `series.path == library.path` exception (library root doubling as a
// series) also bounds descent to max_depth=1, since every other
// subdirectory under the root is itself a series candidate.
func WalkSeries(path string, libraryPath string, existing map[string]ExistingMedia, cfg WalkConfig) (WalkedSeries, error) {
	var result WalkedSeries

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			result.SeriesIsMissing = true
			return result, nil
		}
		return result, err
	}
	if !info.IsDir() {
		result.SeriesIsMissing = true
		return result, nil
	}

	bounded := cfg.Pattern == SeriesBased || path == libraryPath
	candidates, ignoredCount, err := collectCandidates(path, bounded, cfg.IgnoreRules)
	if err != nil {
		return result, err
	}
	result.IgnoredFiles = ignoredCount

	type classified struct {
		job     statJob
		modTime time.Time
		err     error
	}
	jobCh := make(chan statJob, cfg.workers()*4)
	resultCh := make(chan classified, len(candidates))
	var wg sync.WaitGroup
	for w := 0; w < cfg.workers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				st, statErr := os.Stat(job.path)
				if statErr != nil {
					resultCh <- classified{job: job, err: statErr}
					continue
				}
				resultCh <- classified{job: job, modTime: st.ModTime()}
			}
		}()
	}
	go func() {
		for _, c := range candidates {
			jobCh <- c
		}
		close(jobCh)
	}()
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	foundPaths := make(map[string]bool, len(candidates))
	for c := range resultCh {
		result.SeenFiles++
		if c.err != nil {
			continue
		}
		foundPaths[c.job.path] = true
		ex, known := existing[c.job.path]
		switch {
		case !known:
			result.MediaToCreate = append(result.MediaToCreate, c.job.path)
		case ex.Status == "Missing":
			result.RecoveredMedia = append(result.RecoveredMedia, ex.ID)
		case cfg.Options.ForceRescan:
			result.MediaToVisit = append(result.MediaToVisit, MediaVisit{ID: ex.ID, Path: c.job.path, Reason: "forced"})
		case c.modTime.After(ex.ModifiedAt):
			result.MediaToVisit = append(result.MediaToVisit, MediaVisit{ID: ex.ID, Path: c.job.path, Reason: "stale_mtime"})
		default:
			result.SkippedFiles++
		}
	}
	for p := range existing {
		if !foundPaths[p] {
			result.MissingMedia = append(result.MissingMedia, p)
		}
	}

	sort.Strings(result.MediaToCreate)
	sort.Strings(result.MissingMedia)
	sort.Slice(result.MediaToVisit, func(i, j int) bool { return result.MediaToVisit[i].Path < result.MediaToVisit[j].Path })
	return result, nil
}

func collectCandidates(root string, bounded bool, rules *ignore.Matcher) ([]statJob, uint64, error) {
	var candidates []statJob
	var ignored uint64

	if bounded {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, 0, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if !MediaExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			p := filepath.Join(root, e.Name())
			if matches(rules, root, p) {
				ignored++
				continue
			}
			candidates = append(candidates, statJob{path: p, name: e.Name()})
		}
		return candidates, ignored, nil
	}

	err := filepath.WalkDir(root, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !MediaExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		if matches(rules, root, p) {
			ignored++
			return nil
		}
		candidates = append(candidates, statJob{path: p, name: d.Name()})
		return nil
	})
	return candidates, ignored, err
}
