// Package api wires the Stump HTTP surface: REST CRUD for libraries,
// series, and media; the OPDS 1.2/2.0 feed mounts; WebSocket and SSE job
// progress; and session/auth endpoints. Routing uses a *http.ServeMux
// built with Go 1.22's "METHOD /path/{param}" pattern syntax rather than
// a third-party router.
package api

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/stump/stump/internal/auth"
	"github.com/stump/stump/internal/config"
	"github.com/stump/stump/internal/events"
	"github.com/stump/stump/internal/jobs"
	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/repository"
	"github.com/stump/stump/internal/session"
	"github.com/stump/stump/internal/watcher"
)

// Server aggregates every repository and subsystem a handler needs as a
// flat struct of dependencies, rather than a DI container.
type Server struct {
	cfg    *config.Config
	db     *sql.DB
	auth   *auth.Middleware
	queue  *jobs.Queue
	hub    *events.Hub
	router *http.ServeMux

	users      *repository.UserRepository
	apiKeys    *repository.APIKeyRepository
	libraries  *repository.LibraryRepository
	series     *repository.SeriesRepository
	media      *repository.MediaRepository
	sessions   *repository.SessionRepository
	smartLists *repository.SmartListRepository
	jobRepo    *repository.JobRepository
	schedules  *repository.JobScheduleRepository
	scanRecs   *repository.ScanRecordRepository
	settings   *repository.SettingsRepository
	tracker    *session.Tracker
	watcher    *watcher.Watcher
}

func NewServer(cfg *config.Config, db *sql.DB, queue *jobs.Queue, hub *events.Hub) *Server {
	sessions := repository.NewSessionRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	s := &Server{
		cfg:        cfg,
		db:         db,
		auth:       auth.NewMiddleware(db, cfg.JWTSecret),
		queue:      queue,
		hub:        hub,
		router:     http.NewServeMux(),
		users:      repository.NewUserRepository(db),
		apiKeys:    repository.NewAPIKeyRepository(db),
		libraries:  repository.NewLibraryRepository(db),
		series:     repository.NewSeriesRepository(db),
		media:      mediaRepo,
		sessions:   sessions,
		smartLists: repository.NewSmartListRepository(db),
		jobRepo:    repository.NewJobRepository(db),
		schedules:  repository.NewJobScheduleRepository(db),
		scanRecs:   repository.NewScanRecordRepository(db),
		settings:   repository.NewSettingsRepository(db),
		tracker:    session.NewTracker(sessions, mediaRepo),
	}
	s.setupRoutes()
	return s
}

func (s *Server) Router() http.Handler { return s.router }

// Queue exposes the job queue the Server was constructed with.
func (s *Server) Queue() *jobs.Queue { return s.queue }

func (s *Server) Libraries() *repository.LibraryRepository         { return s.libraries }
func (s *Server) Series() *repository.SeriesRepository             { return s.series }
func (s *Server) Media() *repository.MediaRepository                { return s.media }
func (s *Server) ScanRecords() *repository.ScanRecordRepository     { return s.scanRecs }
func (s *Server) JobScheduleRepo() *repository.JobScheduleRepository { return s.schedules }
func (s *Server) JobRepo() *repository.JobRepository                { return s.jobRepo }
func (s *Server) Hub() *events.Hub                                  { return s.hub }

// SetWatcher wires the Library Watcher in after construction — cmd/stump
// builds it from this Server's repository accessors and its own queue, so the
// dependency only flows one direction despite the circular-looking
// relationship (watcher triggers scans the API also triggers; the API
// tells the watcher when to hot-swap its watched roots).
func (s *Server) SetWatcher(w *watcher.Watcher) { s.watcher = w }

func (s *Server) refreshWatcher() {
	if s.watcher != nil {
		s.watcher.Refresh()
	}
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /healthz", s.handleHealthz)

	s.router.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	s.router.HandleFunc("POST /api/v1/auth/logout", s.withAuth(s.handleLogout))
	s.router.HandleFunc("GET /api/v1/auth/me", s.withAuth(s.handleMe))
	s.router.HandleFunc("GET /api/v1/users/{id}/api-keys", s.withAuth(s.handleListAPIKeys))
	s.router.HandleFunc("POST /api/v1/users/{id}/api-keys", s.withAuth(s.handleCreateAPIKey))
	s.router.HandleFunc("DELETE /api/v1/users/{id}/api-keys/{keyID}", s.withAuth(s.handleRevokeAPIKey))

	s.router.HandleFunc("GET /api/v1/libraries", s.withAuth(s.handleListLibraries))
	s.router.HandleFunc("POST /api/v1/libraries", s.withPermission(models.PermLibraryCreate, s.handleCreateLibrary))
	s.router.HandleFunc("GET /api/v1/libraries/{id}", s.withAuth(s.handleGetLibrary))
	s.router.HandleFunc("PUT /api/v1/libraries/{id}", s.withPermission(models.PermLibraryEdit, s.handleUpdateLibrary))
	s.router.HandleFunc("DELETE /api/v1/libraries/{id}", s.withPermission(models.PermLibraryDelete, s.handleDeleteLibrary))
	s.router.HandleFunc("POST /api/v1/libraries/{id}/scan", s.withPermission(models.PermLibraryScan, s.handleScanLibrary))
	s.router.HandleFunc("GET /api/v1/libraries/{id}/scan-history", s.withAuth(s.handleLibraryScanHistory))
	s.router.HandleFunc("GET /api/v1/libraries/{id}/series", s.withAuth(s.handleListSeries))

	s.router.HandleFunc("GET /api/v1/series/{id}", s.withAuth(s.handleGetSeries))
	s.router.HandleFunc("GET /api/v1/series/{id}/media", s.withAuth(s.handleListMediaBySeries))

	s.router.HandleFunc("GET /api/v1/media/{id}", s.withAuth(s.handleGetMedia))
	s.router.HandleFunc("GET /api/v1/media/{id}/page/{page}", s.withAuth(s.handleGetMediaPage))
	s.router.HandleFunc("GET /api/v1/media/{id}/file", s.withPermission(models.PermFileDownload, s.handleGetMediaFile))
	s.router.HandleFunc("PUT /api/v1/media/{id}/progress", s.withAuth(s.handleUpdateProgress))
	s.router.HandleFunc("POST /api/v1/media/{id}/progress/complete", s.withAuth(s.handleCompleteProgress))
	s.router.HandleFunc("GET /api/v1/media/{id}/progress/complete", s.withAuth(s.handleGetProgressCompletion))
	s.router.HandleFunc("GET /api/v1/media/keep-reading", s.withAuth(s.handleKeepReading))

	s.router.HandleFunc("GET /api/v1/smart-lists", s.withAuth(s.handleListSmartLists))
	s.router.HandleFunc("POST /api/v1/smart-lists", s.withAuth(s.handleCreateSmartList))
	s.router.HandleFunc("GET /api/v1/smart-lists/{id}", s.withAuth(s.handleGetSmartList))
	s.router.HandleFunc("PUT /api/v1/smart-lists/{id}", s.withAuth(s.handleUpdateSmartList))
	s.router.HandleFunc("DELETE /api/v1/smart-lists/{id}", s.withAuth(s.handleDeleteSmartList))
	s.router.HandleFunc("GET /api/v1/smart-lists/{id}/results", s.withAuth(s.handleRunSmartList))

	s.router.HandleFunc("GET /api/v1/jobs", s.withPermission(models.PermServerManage, s.handleListJobs))
	s.router.HandleFunc("GET /api/v1/jobs/{id}", s.withPermission(models.PermServerManage, s.handleGetJob))

	s.router.HandleFunc("GET /ws", s.handleWebSocket)
	s.router.HandleFunc("GET /api/v1/events", s.handleSSE)

	s.mountOPDS()

	log.Println("api: routes registered")
}

func (s *Server) withAuth(h http.HandlerFunc) http.HandlerFunc {
	return s.auth.RequireAuth(h).ServeHTTP
}

func (s *Server) withPermission(perm models.UserPermission, h http.HandlerFunc) http.HandlerFunc {
	return s.auth.RequirePermission(perm)(h).ServeHTTP
}

func (s *Server) withOwner(h http.HandlerFunc) http.HandlerFunc {
	return s.auth.RequireServerOwner(h).ServeHTTP
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","time":"` + time.Now().UTC().Format(time.RFC3339) + `"}`))
}
