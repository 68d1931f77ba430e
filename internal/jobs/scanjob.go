package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stump/stump/internal/apperr"
	"github.com/stump/stump/internal/hash"
	"github.com/stump/stump/internal/ignore"
	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/processor"
	"github.com/stump/stump/internal/repository"
	"github.com/stump/stump/internal/walker"
)

// Library Scan Job task kinds. WalkSeries fans out into up to
// four ordered subtasks per series so a paused/resumed job picks back up
// mid-series instead of re-walking it.
const (
	taskWalkSeries       = "walk_series"
	taskMarkMissingMedia = "mark_missing_media"
	taskRestoreMedia     = "restore_media"
	taskCreateMedia      = "create_media"
	taskVisitMedia       = "visit_media"
)

type walkSeriesPayload struct {
	SeriesPath string `json:"series_path"`
	Recovered  bool   `json:"recovered"`
}

type markMissingMediaPayload struct {
	SeriesID uuid.UUID `json:"series_id"`
	Paths    []string  `json:"paths"`
}

type restoreMediaPayload struct {
	SeriesID uuid.UUID   `json:"series_id"`
	MediaIDs []uuid.UUID `json:"media_ids"`
}

type createMediaPayload struct {
	SeriesID uuid.UUID `json:"series_id"`
	Paths    []string  `json:"paths"`
}

type visitMediaPayload struct {
	SeriesID uuid.UUID           `json:"series_id"`
	Media    []walker.MediaVisit `json:"media"`
}

// ScanLibraryJob implements JobType for the Library Scan Job:
// it walks a library's directory tree, reconciles what's on disk against
// what's tracked, and (re)processes anything new, moved, or changed.
type ScanLibraryJob struct {
	LibraryID uuid.UUID
	JobID     uuid.UUID
	Options   models.ScanOptions

	Libraries *repository.LibraryRepository
	Series    *repository.SeriesRepository
	Media     *repository.MediaRepository
	Scans     *repository.ScanRecordRepository
	Jobs      *repository.JobRepository

	library *models.Library
	result  models.ScanResult
}

func NewScanLibraryJob(libraryID, jobID uuid.UUID, opts models.ScanOptions, libraries *repository.LibraryRepository, series *repository.SeriesRepository, media *repository.MediaRepository, scans *repository.ScanRecordRepository, jobs *repository.JobRepository) *ScanLibraryJob {
	return &ScanLibraryJob{
		LibraryID: libraryID,
		JobID:     jobID,
		Options:   opts,
		Libraries: libraries,
		Series:    series,
		Media:     media,
		Scans:     scans,
		Jobs:      jobs,
	}
}

func (j *ScanLibraryJob) Name() string { return "scan_library:" + j.LibraryID.String() }

// Init walks the library's top level to discover/classify series, marking
// the library (and every tracked series beneath it) Missing and failing
// the job if the library root itself is gone (the
// "library_is_missing is a fatal Init failure").
func (j *ScanLibraryJob) Init(ctx context.Context) (*WorkingState, error) {
	lib, err := j.Libraries.GetByID(j.LibraryID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabaseError, "load library", err)
	}
	j.library = lib

	rules, err := ignore.Compile(lib.Config.IgnoreRules)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindJobInitFailed, "invalid ignore rules", err)
	}

	existingSeries, err := j.Series.ListByLibrary(lib.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabaseError, "list existing series", err)
	}
	existingByPath := make(map[string]walker.ExistingSeries, len(existingSeries))
	for _, s := range existingSeries {
		existingByPath[s.Path] = walker.ExistingSeries{ID: s.ID, Status: string(s.Status)}
	}

	pattern := walker.CollectionBased
	if lib.Config.LibraryPattern == models.PatternSeriesBased {
		pattern = walker.SeriesBased
	}
	cfg := walker.WalkConfig{Pattern: pattern, IgnoreRules: rules, Options: walker.ScanOptions{ForceRescan: j.Options.ForceRescan}}

	walked, err := walker.WalkLibrary(lib.Path, existingByPath, cfg)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIOError, "walk library", err)
	}

	if walked.LibraryIsMissing {
		if err := j.markLibraryMissing(lib.ID); err != nil {
			return nil, apperr.Wrap(apperr.KindDatabaseError, "mark library missing", err)
		}
		return nil, apperr.New(apperr.KindJobInitFailed, fmt.Sprintf("library root %q no longer exists", lib.Path))
	}

	var tasks []Task
	for _, p := range walked.SeriesToCreate {
		tasks = append(tasks, mustTask(taskWalkSeries, walkSeriesPayload{SeriesPath: p}))
	}
	for _, p := range walked.SeriesToVisit {
		recovered := false
		for _, existing := range existingSeries {
			if existing.Path == p && existing.Status == models.LibraryStatusMissing {
				recovered = true
				break
			}
		}
		tasks = append(tasks, mustTask(taskWalkSeries, walkSeriesPayload{SeriesPath: p, Recovered: recovered}))
	}
	for _, missingPath := range walked.MissingSeries {
		if existing, ok := existingByPath[missingPath]; ok && existing.Status != string(models.LibraryStatusMissing) {
			if err := j.Series.UpdateStatus(existing.ID, models.LibraryStatusMissing); err != nil {
				return nil, apperr.Wrap(apperr.KindDatabaseError, "mark series missing", err)
			}
			j.result.SeriesMissing++
		}
	}

	j.result.IgnoredDirectories += int(walked.IgnoredDirectories)
	output, _ := json.Marshal(j.result)
	return &WorkingState{Output: output, Tasks: tasks}, nil
}

func (j *ScanLibraryJob) markLibraryMissing(libraryID uuid.UUID) error {
	if err := j.Libraries.UpdateStatus(libraryID, models.LibraryStatusMissing); err != nil {
		return err
	}
	seriesList, err := j.Series.ListByLibrary(libraryID)
	if err != nil {
		return err
	}
	for _, s := range seriesList {
		if s.Status != models.LibraryStatusMissing {
			if err := j.Series.UpdateStatus(s.ID, models.LibraryStatusMissing); err != nil {
				return err
			}
		}
		media, err := j.Media.ListBySeries(s.ID)
		if err != nil {
			return err
		}
		for _, m := range media {
			if m.Status != models.LibraryStatusMissing {
				if err := j.Media.UpdateStatus(m.ID, models.LibraryStatusMissing); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ExecuteTask dispatches on task.Kind. A missing series at subtask time
// (deleted mid-scan) is a logged warning, not a job failure — only the
// library-root-missing case from Init is fatal.
func (j *ScanLibraryJob) ExecuteTask(ctx context.Context, state *WorkingState, task Task) (*TaskOutput, error) {
	switch task.Kind {
	case taskWalkSeries:
		return j.executeWalkSeries(task)
	case taskMarkMissingMedia:
		return j.executeMarkMissingMedia(task)
	case taskRestoreMedia:
		return j.executeRestoreMedia(task)
	case taskCreateMedia:
		return j.executeCreateMedia(task)
	case taskVisitMedia:
		return j.executeVisitMedia(task)
	default:
		return nil, apperr.New(apperr.KindJobTaskFailed, "unknown task kind "+task.Kind)
	}
}

func (j *ScanLibraryJob) executeWalkSeries(task Task) (*TaskOutput, error) {
	var p walkSeriesPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return nil, apperr.Wrap(apperr.KindJobTaskFailed, "decode walk_series payload", err)
	}

	existing, err := j.Series.GetByPath(p.SeriesPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabaseError, "lookup series by path", err)
	}

	var seriesID uuid.UUID
	logs := []string{}
	if existing == nil {
		s := &models.Series{
			ID:        uuid.New(),
			LibraryID: j.library.ID,
			Name:      filepath.Base(p.SeriesPath),
			Path:      p.SeriesPath,
			Status:    models.LibraryStatusReady,
		}
		if p.SeriesPath == j.library.Path {
			s.Name = j.library.Name
		}
		if err := j.Series.Create(s); err != nil {
			return nil, apperr.Wrap(apperr.KindDatabaseError, "create series", err)
		}
		seriesID = s.ID
		j.result.SeriesCreated++
	} else {
		seriesID = existing.ID
		if p.Recovered && existing.Status == models.LibraryStatusMissing {
			if err := j.Series.UpdateStatus(seriesID, models.LibraryStatusReady); err != nil {
				return nil, apperr.Wrap(apperr.KindDatabaseError, "restore series", err)
			}
			j.result.SeriesRecovered++
		}
	}

	existingMedia, err := j.Media.ListBySeries(seriesID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabaseError, "list existing media", err)
	}
	existingByPath := make(map[string]walker.ExistingMedia, len(existingMedia))
	for _, m := range existingMedia {
		existingByPath[m.Path] = walker.ExistingMedia{ID: m.ID, ModifiedAt: m.ModifiedAt, Status: string(m.Status)}
	}

	dirRules, err := ignore.LoadDotfile(p.SeriesPath)
	if err != nil {
		logs = append(logs, fmt.Sprintf("could not read .stumpignore in %q: %v", p.SeriesPath, err))
	}
	rules, err := ignore.Merge(j.library.Config.IgnoreRules, dirRules)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindJobTaskFailed, "invalid ignore rules", err)
	}
	pattern := walker.CollectionBased
	if j.library.Config.LibraryPattern == models.PatternSeriesBased {
		pattern = walker.SeriesBased
	}
	cfg := walker.WalkConfig{Pattern: pattern, IgnoreRules: rules, Options: walker.ScanOptions{ForceRescan: j.Options.ForceRescan}}

	walked, err := walker.WalkSeries(p.SeriesPath, j.library.Path, existingByPath, cfg)
	if err != nil {
		logs = append(logs, fmt.Sprintf("series %q could not be walked: %v", p.SeriesPath, err))
		return &TaskOutput{Output: mustMarshalAny(j.result), Logs: logs}, nil
	}
	if walked.SeriesIsMissing {
		if existing != nil && existing.Status != models.LibraryStatusMissing {
			_ = j.Series.UpdateStatus(seriesID, models.LibraryStatusMissing)
		}
		logs = append(logs, fmt.Sprintf("series %q disappeared mid-scan", p.SeriesPath))
		return &TaskOutput{Output: mustMarshalAny(j.result), Logs: logs}, nil
	}

	var subtasks []Task
	if len(walked.MissingMedia) > 0 {
		subtasks = append(subtasks, mustTask(taskMarkMissingMedia, markMissingMediaPayload{SeriesID: seriesID, Paths: walked.MissingMedia}))
	}
	if len(walked.RecoveredMedia) > 0 {
		subtasks = append(subtasks, mustTask(taskRestoreMedia, restoreMediaPayload{SeriesID: seriesID, MediaIDs: walked.RecoveredMedia}))
	}
	if len(walked.MediaToCreate) > 0 {
		subtasks = append(subtasks, mustTask(taskCreateMedia, createMediaPayload{SeriesID: seriesID, Paths: walked.MediaToCreate}))
	}
	if len(walked.MediaToVisit) > 0 {
		subtasks = append(subtasks, mustTask(taskVisitMedia, visitMediaPayload{SeriesID: seriesID, Media: walked.MediaToVisit}))
	}

	j.result.Skipped += int(walked.SkippedFiles)
	j.result.Ignored += int(walked.IgnoredFiles)
	// SeenFiles counts every present, non-ignored file exactly once
	// (created + visited + recovered + skipped); IgnoredFiles and
	// MissingMedia are counted separately since they're never stat'd as
	// present candidates. Summing these once per series walk keeps
	// TotalFiles equal to ignored+skipped+created+visited+missing-now+
	// recovered-now, the scan's required output partition.
	j.result.TotalFiles += int(walked.SeenFiles) + int(walked.IgnoredFiles) + len(walked.MissingMedia)
	return &TaskOutput{Output: mustMarshalAny(j.result), Subtasks: subtasks, Logs: logs}, nil
}

func (j *ScanLibraryJob) executeMarkMissingMedia(task Task) (*TaskOutput, error) {
	var p markMissingMediaPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return nil, apperr.Wrap(apperr.KindJobTaskFailed, "decode mark_missing_media payload", err)
	}
	for _, path := range p.Paths {
		m, err := j.Media.GetByPath(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDatabaseError, "lookup media by path", err)
		}
		if m == nil || m.Status == models.LibraryStatusMissing {
			continue
		}
		if err := j.Media.UpdateStatus(m.ID, models.LibraryStatusMissing); err != nil {
			return nil, apperr.Wrap(apperr.KindDatabaseError, "mark media missing", err)
		}
		j.result.Missing++
	}
	return &TaskOutput{Output: mustMarshalAny(j.result)}, nil
}

func (j *ScanLibraryJob) executeRestoreMedia(task Task) (*TaskOutput, error) {
	var p restoreMediaPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return nil, apperr.Wrap(apperr.KindJobTaskFailed, "decode restore_media payload", err)
	}
	var logs []string
	for _, id := range p.MediaIDs {
		if err := j.Media.UpdateStatus(id, models.LibraryStatusReady); err != nil {
			return nil, apperr.Wrap(apperr.KindDatabaseError, "restore media", err)
		}
		if j.library.Config.ProcessMetadata {
			if err := j.reprocessMedia(id); err != nil {
				logs = append(logs, fmt.Sprintf("recovered media %s but failed to re-process metadata: %v", id, err))
			}
		}
		j.result.Recovered++
	}
	return &TaskOutput{Output: mustMarshalAny(j.result), Logs: logs}, nil
}

// reprocessMedia rebuilds an existing Media row's processed fields (hash,
// pages, metadata) from its current on-disk path, leaving its id and
// series unchanged.
func (j *ScanLibraryJob) reprocessMedia(id uuid.UUID) error {
	existing, err := j.Media.GetByID(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	rebuilt, err := j.buildMedia(existing.SeriesID, existing.Path)
	if err != nil {
		return err
	}
	rebuilt.ID = existing.ID
	return j.Media.Update(rebuilt)
}

func (j *ScanLibraryJob) executeCreateMedia(task Task) (*TaskOutput, error) {
	var p createMediaPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return nil, apperr.Wrap(apperr.KindJobTaskFailed, "decode create_media payload", err)
	}
	var logs []string
	for _, path := range p.Paths {
		m, err := j.buildMedia(p.SeriesID, path)
		if err != nil {
			logs = append(logs, fmt.Sprintf("failed to process %q: %v", path, err))
			j.result.Errors = append(j.result.Errors, err.Error())
			continue
		}
		if err := j.Media.Create(m); err != nil {
			logs = append(logs, fmt.Sprintf("failed to save %q: %v", path, err))
			continue
		}
		j.result.Created++
	}
	return &TaskOutput{Output: mustMarshalAny(j.result), Logs: logs}, nil
}

func (j *ScanLibraryJob) executeVisitMedia(task Task) (*TaskOutput, error) {
	var p visitMediaPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return nil, apperr.Wrap(apperr.KindJobTaskFailed, "decode visit_media payload", err)
	}
	var logs []string
	for _, visit := range p.Media {
		rebuilt, err := j.buildMedia(p.SeriesID, visit.Path)
		if err != nil {
			logs = append(logs, fmt.Sprintf("failed to revisit %q (%s): %v", visit.Path, visit.Reason, err))
			continue
		}
		rebuilt.ID = visit.ID
		if err := j.Media.Update(rebuilt); err != nil {
			logs = append(logs, fmt.Sprintf("failed to update %q: %v", visit.Path, err))
			continue
		}
		j.result.Visited++
	}
	return &TaskOutput{Output: mustMarshalAny(j.result), Logs: logs}, nil
}

// buildMedia stats, dispatches, processes, and (per library config) hashes
// one file, producing an unsaved Media row ready for Create or Update.
func (j *ScanLibraryJob) buildMedia(seriesID uuid.UUID, path string) (*models.Media, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	sniff := make([]byte, 16)
	n, _ := f.Read(sniff)
	f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	kind := processor.Dispatch(ext, sniff[:n])
	if kind == "" {
		return nil, apperr.New(apperr.KindProcessFileError, "unrecognized format for "+path)
	}

	proc, err := processor.For(kind)
	if err != nil {
		return nil, err
	}
	result, err := proc.Process(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessFileError, "process "+path, err)
	}

	m := &models.Media{
		SeriesID:   seriesID,
		Name:       strings.TrimSuffix(filepath.Base(path), ext),
		Extension:  strings.TrimPrefix(ext, "."),
		Size:       info.Size(),
		Pages:      result.PageCount,
		Path:       path,
		Status:     models.LibraryStatusReady,
		ModifiedAt: info.ModTime(),
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	if j.library.Config.GenerateStumpHash {
		if h, err := hash.Stump(path); err == nil {
			m.StumpHash = &h
		}
	}
	if j.library.Config.GenerateKoreaderHash {
		if h, err := hash.KOReader(path); err == nil {
			m.KoreaderHash = &h
		}
	}
	if result.Metadata != nil {
		m.Metadata = toMediaMetadata(m.ID, result.Metadata)
	}
	return m, nil
}

func toMediaMetadata(mediaID uuid.UUID, em *processor.ExtractedMetadata) *models.MediaMetadata {
	meta := &models.MediaMetadata{MediaID: mediaID}
	if em.Title != "" {
		meta.Title = &em.Title
	}
	if em.Series != "" {
		meta.Series = &em.Series
	}
	if em.Number != 0 {
		meta.Number = &em.Number
	}
	if em.Volume != 0 {
		meta.Volume = &em.Volume
	}
	if em.Year != 0 {
		meta.Year = &em.Year
	}
	if em.Genre != "" {
		meta.Genre = &em.Genre
	}
	if em.Summary != "" {
		meta.Summary = &em.Summary
	}
	meta.Creators = em.Creators
	if em.AgeRating != 0 {
		meta.AgeRating = &em.AgeRating
	}
	return meta
}

// Cleanup writes the LibraryScanRecord, stamps last_scanned_at, and — when
// this library generates thumbnails and the scan actually changed
// anything — enqueues a follow-up thumbnail generation job.
func (j *ScanLibraryJob) Cleanup(ctx context.Context, output json.RawMessage) (*EnqueueRequest, error) {
	now := time.Now().UTC()
	if err := j.Libraries.UpdateLastScanned(j.library.ID, now); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabaseError, "update last_scanned_at", err)
	}

	var finalResult models.ScanResult
	_ = json.Unmarshal(output, &finalResult)

	if j.Scans != nil {
		rec := &models.LibraryScanRecord{
			ID:        uuid.New(),
			LibraryID: j.library.ID,
			JobID:     j.JobID,
			Options:   j.Options,
		}
		if err := j.Scans.Create(rec); err != nil {
			return nil, apperr.Wrap(apperr.KindDatabaseError, "write scan record", err)
		}
	}

	changed := finalResult.Created > 0 || finalResult.Recovered > 0 || finalResult.Visited > 0 ||
		finalResult.SeriesCreated > 0 || finalResult.SeriesRecovered > 0
	if changed && j.library.Config.ThumbnailFormat != "" && j.Jobs != nil {
		thumbJobID := uuid.New()
		thumbJob := &models.Job{ID: thumbJobID, Name: "thumbnail:" + j.library.ID.String(), Status: models.JobQueued}
		if err := j.Jobs.Create(thumbJob); err != nil {
			return nil, apperr.Wrap(apperr.KindDatabaseError, "create thumbnail follow-up job", err)
		}
		return &EnqueueRequest{
			TaskType: TaskGenerateThumbnail,
			Payload:  ThumbnailJobPayload{JobID: thumbJobID, LibraryID: j.library.ID},
			UniqueID: "thumbnail:" + j.library.ID.String(),
		}, nil
	}
	return nil, nil
}

func mustTask(kind string, payload interface{}) Task {
	data, _ := json.Marshal(payload)
	return Task{Kind: kind, Payload: data}
}

func mustMarshalAny(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
