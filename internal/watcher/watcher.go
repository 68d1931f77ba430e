// Package watcher implements the Library Watcher: each
// Library with Config.Watch enabled has its root recursively watched via
// fsnotify; bursts of filesystem activity are coalesced by an idle timer
// per library, and once the library goes quiet a Library Scan Job is
// enqueued for it rather than reconciling individual file events by hand.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/stump/stump/internal/jobs"
	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/repository"
)

// idleWindow is how long a library's filesystem must stay quiet before a
// rescan is enqueued — long enough to outlast a multi-file copy or a zip
// extraction landing one file at a time, short enough that a reader sees
// a newly-dropped book within a few seconds of the copy finishing.
const idleWindow = 5 * time.Second

// mediaExtensions is the comic/e-book allowlist a filesystem event must
// match to matter at all — anything else (a .nfo, a folder.jpg, a
// partial download) is noise the watcher ignores rather than debounces.
var mediaExtensions = map[string]bool{
	".cbz": true, ".cbr": true, ".zip": true, ".rar": true,
	".epub": true, ".pdf": true,
}

// Watcher recursively watches every Watch-enabled Library's root and
// enqueues a rescan once a library's tree has been quiet for idleWindow.
type Watcher struct {
	libraries *repository.LibraryRepository
	jobRepo   *repository.JobRepository
	queue     *jobs.Queue

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]uuid.UUID // directory -> library ID
	timers  map[uuid.UUID]*time.Timer
	stop    chan struct{}
}

func New(libraries *repository.LibraryRepository, jobRepo *repository.JobRepository, queue *jobs.Queue) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		libraries: libraries,
		jobRepo:   jobRepo,
		queue:     queue,
		fsw:       fsw,
		watched:   make(map[string]uuid.UUID),
		timers:    make(map[uuid.UUID]*time.Timer),
		stop:      make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() {
	go w.eventLoop()
	w.Refresh()
	log.Println("watcher: started")
}

func (w *Watcher) Stop() {
	close(w.stop)
	w.fsw.Close()
}

// Refresh reconciles the watched directory set against the current
// Watch-enabled libraries — called at startup and whenever a library is
// created, updated, or deleted, so a library's root can be added or
// dropped from the watch set without restarting the process (the
// hot-swap-roots requirement).
func (w *Watcher) Refresh() {
	libs, err := w.libraries.List()
	if err != nil {
		log.Printf("watcher: could not load libraries: %v", err)
		return
	}

	desired := make(map[string]uuid.UUID)
	for _, lib := range libs {
		if lib.Config.Watch && lib.Status == models.LibraryStatusReady {
			desired[lib.Path] = lib.ID
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for dir := range w.watched {
		if _, ok := w.desiredRoot(desired, dir); !ok {
			w.fsw.Remove(dir)
			delete(w.watched, dir)
		}
	}
	for root, libID := range desired {
		if w.alreadyWatchingRoot(root) {
			continue
		}
		if err := w.addRecursive(root, libID); err != nil {
			log.Printf("watcher: could not watch %s: %v", root, err)
		}
	}
	log.Printf("watcher: watching %d directories across %d libraries", len(w.watched), len(desired))
}

func (w *Watcher) desiredRoot(desired map[string]uuid.UUID, dir string) (uuid.UUID, bool) {
	for root, libID := range desired {
		if dir == root || strings.HasPrefix(dir, root+string(os.PathSeparator)) {
			return libID, true
		}
	}
	return uuid.Nil, false
}

func (w *Watcher) alreadyWatchingRoot(root string) bool {
	_, ok := w.watched[root]
	return ok
}

func (w *Watcher) addRecursive(root string, libID uuid.UUID) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return nil
			}
			w.watched[path] = libID
		}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: fsnotify error: %v", err)
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return
	}

	w.mu.Lock()
	libID, known := w.resolveLibraryLocked(event.Name)
	w.mu.Unlock()
	if !known {
		return
	}

	// A newly created directory needs to be watched itself, in case it's
	// a new series folder whose own contents will arrive a moment later.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			w.fsw.Add(event.Name)
			w.watched[event.Name] = libID
			w.mu.Unlock()
		}
	}

	if !mediaExtensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}

	w.armIdleTimer(libID)
}

// armIdleTimer (re)starts the per-library idle timer; any further event
// for the same library before it fires pushes the flush back out,
// coalescing an entire copy/extraction burst into one rescan.
func (w *Watcher) armIdleTimer(libID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[libID]; ok {
		t.Stop()
	}
	w.timers[libID] = time.AfterFunc(idleWindow, func() {
		w.mu.Lock()
		delete(w.timers, libID)
		w.mu.Unlock()
		w.flush(libID)
	})
}

// flush enqueues a Library Scan Job the same way the REST scan-trigger
// handler does: a Queued Job row plus a unique-keyed task, so a watcher-
// triggered scan and a user-triggered scan against the same library never
// run concurrently.
func (w *Watcher) flush(libID uuid.UUID) {
	jobID := uuid.New()
	job := &models.Job{ID: jobID, Name: "watcher_scan:" + libID.String(), Status: models.JobQueued}
	if err := w.jobRepo.Create(job); err != nil {
		log.Printf("watcher: could not create scan job for library %s: %v", libID, err)
		return
	}
	payload := map[string]interface{}{
		"job_id":     jobID.String(),
		"library_id": libID.String(),
		"options":    models.ScanOptions{},
	}
	if _, err := w.queue.EnqueueUnique(jobs.TaskScanLibrary, payload, "scan:"+libID.String()); err != nil {
		log.Printf("watcher: could not enqueue scan for library %s: %v", libID, err)
		return
	}
	log.Printf("watcher: library %s idle, scan enqueued", libID)
}

func (w *Watcher) resolveLibraryLocked(path string) (uuid.UUID, bool) {
	dir := filepath.Dir(path)
	for {
		if libID, ok := w.watched[dir]; ok {
			return libID, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return uuid.Nil, false
		}
		dir = parent
	}
}
