package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/stump/stump/internal/api"
	"github.com/stump/stump/internal/config"
	"github.com/stump/stump/internal/db"
	"github.com/stump/stump/internal/events"
	"github.com/stump/stump/internal/jobs"
	"github.com/stump/stump/internal/models"
	"github.com/stump/stump/internal/watcher"
)

const bannerArt = `
   _____ _
  / ____| |
 | (___ | |_ _   _ _ __ ___  _ __
  \___ \| __| | | | '_ ' _ \| '_ \
  ____) | |_| |_| | | | | | | |_) |
 |_____/ \__|\__,_|_| |_| |_| .__/
                            | |
                            |_|
`

func main() {
	fmt.Println(bannerArt)
	fmt.Println("  Comic & e-book media server")

	cfg := config.Load()

	database, err := db.Connect(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("database connected")

	if err := db.Migrate(database); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	log.Println("migrations applied")

	cfg.MergeFromDB(database)

	queue := jobs.NewQueue(cfg.RedisAddr)
	log.Println("job queue initialized")

	hub := events.NewHub()

	server := api.NewServer(cfg, database, queue, hub)

	runner := jobs.NewRunner(server.JobRepo(), queue, hub, nil)
	jobs.RegisterHandlers(queue, runner, server.Libraries(), server.Series(), server.Media(),
		server.ScanRecords(), server.JobRepo())

	go func() {
		if err := queue.Start(context.Background()); err != nil {
			log.Printf("job queue worker stopped: %v", err)
		}
	}()
	defer queue.Stop()

	fsWatcher, err := watcher.New(server.Libraries(), server.JobRepo(), queue)
	if err != nil {
		log.Printf("filesystem watcher failed to start: %v", err)
	} else {
		server.SetWatcher(fsWatcher)
		fsWatcher.Start()
		defer fsWatcher.Stop()
	}

	scheduler := jobs.NewScheduler(server.JobScheduleRepo(), func(libraryID uuid.UUID) {
		jobID := uuid.New()
		job := &models.Job{ID: jobID, Name: "scheduled_scan:" + libraryID.String(), Status: models.JobQueued}
		if err := server.JobRepo().Create(job); err != nil {
			log.Printf("scheduler: could not create scan job for library %s: %v", libraryID, err)
			return
		}
		payload := map[string]interface{}{"job_id": jobID.String(), "library_id": libraryID.String(), "options": models.ScanOptions{}}
		if _, err := queue.EnqueueUnique(jobs.TaskScanLibrary, payload, "scan:"+libraryID.String()); err != nil {
			log.Printf("scheduler: could not enqueue scan for library %s: %v", libraryID, err)
		}
	})
	if err := scheduler.Start(); err != nil {
		log.Printf("scheduler failed to start: %v", err)
	}
	defer scheduler.Stop()

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("server listening on %s", addr)
	log.Printf("websocket available at ws://0.0.0.0%s/ws", addr)
	if err := http.ListenAndServe(addr, server.Router()); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
