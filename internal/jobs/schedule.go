package jobs

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/stump/stump/internal/repository"
)

// OnScanDue is invoked when a library's JobScheduleConfig cron expression
// fires — the caller enqueues a Library Scan Job (the recurring
// scan configuration).
type OnScanDue func(libraryID uuid.UUID)

// Scheduler runs one real cron entry per enabled JobScheduleConfig,
// rather than a ticker polling "is anything due" on a fixed interval,
// since schedules are specified as cron syntax.
type Scheduler struct {
	cron     *cron.Cron
	configs  *repository.JobScheduleRepository
	callback OnScanDue
	entries  map[uuid.UUID]cron.EntryID
}

func NewScheduler(configs *repository.JobScheduleRepository, cb OnScanDue) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		configs:  configs,
		callback: cb,
		entries:  make(map[uuid.UUID]cron.EntryID),
	}
}

// Start loads every enabled schedule and registers its cron entry, then
// starts the cron runner's own goroutine.
func (s *Scheduler) Start() error {
	schedules, err := s.configs.ListEnabled()
	if err != nil {
		return err
	}
	for _, cfg := range schedules {
		if err := s.register(cfg.ID, cfg.LibraryID, cfg.CronExpr); err != nil {
			log.Printf("[scheduler] invalid cron expr %q for library %s: %v", cfg.CronExpr, cfg.LibraryID, err)
			continue
		}
	}
	s.cron.Start()
	log.Printf("[scheduler] started with %d schedule(s)", len(s.entries))
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) register(scheduleID, libraryID uuid.UUID, expr string) error {
	entryID, err := s.cron.AddFunc(expr, func() {
		log.Printf("[scheduler] cron fired for library %s", libraryID)
		if err := s.configs.MarkFired(scheduleID, time.Now().UTC()); err != nil {
			log.Printf("[scheduler] failed to record last_fired_at: %v", err)
		}
		s.callback(libraryID)
	})
	if err != nil {
		return err
	}
	s.entries[scheduleID] = entryID
	return nil
}

// Reload re-registers a single schedule after it's created or edited via
// the API, without restarting the whole cron runner.
func (s *Scheduler) Reload(scheduleID, libraryID uuid.UUID, expr string) error {
	if existing, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(existing)
		delete(s.entries, scheduleID)
	}
	return s.register(scheduleID, libraryID, expr)
}

func (s *Scheduler) Unregister(scheduleID uuid.UUID) {
	if existing, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(existing)
		delete(s.entries, scheduleID)
	}
}
