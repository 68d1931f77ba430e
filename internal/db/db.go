// Package db wires up the SQLite connection and schema migrations. SQLite
// is the canonical persistence format; the driver is
// modernc.org/sqlite (pure Go, no cgo), matching the pack's own OPDS/comic
// servers (other_examples/manifests/banux-nxt-opds, .../ryanm101-romman).
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"log"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func Connect(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	// SQLite permits one writer at a time; keep the pool small so busy-writer
	// errors surface as contention handled by the driver's busy timeout
	// rather than as pile-ups of idle connections.
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(8)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	log.Println("database connected")
	return conn, nil
}

// Migrate applies every embedded *.sql migration exactly once, tracked in
// schema_migrations, by globbing the migrations directory and applying
// files in sorted-filename order.
func Migrate(conn *sql.DB) error {
	_, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")

		var exists bool
		conn.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=?)", version).Scan(&exists)
		if exists {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}

		log.Printf("db: applying migration %s", name)
		if _, err := conn.Exec(string(content)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}

		if _, err := conn.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}

	return nil
}
