package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stump/stump/internal/access"
	"github.com/stump/stump/internal/models"
)

type LibraryRepository struct {
	db *sql.DB
}

func NewLibraryRepository(db *sql.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

const libraryColumns = `id, name, path, status, emoji, last_scanned_at, created_at, updated_at`

func scanLibrary(row interface{ Scan(dest ...interface{}) error }) (*models.Library, error) {
	lib := &models.Library{}
	var idStr string
	var emoji sql.NullString
	var lastScanned sql.NullTime
	err := row.Scan(&idStr, &lib.Name, &lib.Path, &lib.Status, &emoji, &lastScanned,
		&lib.CreatedAt, &lib.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	lib.ID = id
	if emoji.Valid {
		lib.Emoji = &emoji.String
	}
	if lastScanned.Valid {
		t := lastScanned.Time
		lib.LastScannedAt = &t
	}
	return lib, nil
}

func (r *LibraryRepository) Create(lib *models.Library) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO libraries (id, name, path, status, emoji, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lib.ID.String(), lib.Name, lib.Path, lib.Status, lib.Emoji, now, now)
	if err != nil {
		return err
	}
	lib.CreatedAt, lib.UpdatedAt = now, now
	return r.upsertConfig(lib.ID, lib.Config)
}

func (r *LibraryRepository) GetByID(id uuid.UUID) (*models.Library, error) {
	query := `SELECT ` + libraryColumns + ` FROM libraries WHERE id = ?`
	lib, err := scanLibrary(r.db.QueryRow(query, id.String()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("library not found")
	}
	if err != nil {
		return nil, err
	}
	cfg, err := r.getConfig(id)
	if err != nil {
		return nil, err
	}
	lib.Config = cfg
	return lib, nil
}

func (r *LibraryRepository) List() ([]*models.Library, error) {
	rows, err := r.db.Query(`SELECT ` + libraryColumns + ` FROM libraries ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

// ListForUser applies the same hidden-library restriction every repository
// merges in via the access-control composer — a server owner sees every
// library, everyone else has their HiddenLibraries excluded.
func (r *LibraryRepository) ListForUser(user *models.User) ([]*models.Library, error) {
	cond := access.ForUser(user, "id", "NULL", "NULL")
	whereSQL, args := cond.Render()
	query := `SELECT ` + libraryColumns + ` FROM libraries` + whereSQL + ` ORDER BY name ASC`
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *LibraryRepository) collect(rows *sql.Rows) ([]*models.Library, error) {
	libraries := []*models.Library{}
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		cfg, err := r.getConfig(lib.ID)
		if err != nil {
			return nil, err
		}
		lib.Config = cfg
		libraries = append(libraries, lib)
	}
	return libraries, rows.Err()
}

func (r *LibraryRepository) Update(lib *models.Library) error {
	result, err := r.db.Exec(`
		UPDATE libraries SET name = ?, path = ?, status = ?, emoji = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		lib.Name, lib.Path, lib.Status, lib.Emoji, lib.ID.String())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("library not found")
	}
	return r.upsertConfig(lib.ID, lib.Config)
}

func (r *LibraryRepository) UpdateStatus(id uuid.UUID, status models.LibraryStatus) error {
	_, err := r.db.Exec(`UPDATE libraries SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id.String())
	return err
}

func (r *LibraryRepository) UpdateLastScanned(id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(`UPDATE libraries SET last_scanned_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		at, id.String())
	return err
}

func (r *LibraryRepository) Delete(id uuid.UUID) error {
	result, err := r.db.Exec(`DELETE FROM libraries WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("library not found")
	}
	return nil
}

// ──── Library config ────

func (r *LibraryRepository) getConfig(libraryID uuid.UUID) (models.LibraryConfig, error) {
	var cfg models.LibraryConfig
	var ignoreJSON string
	err := r.db.QueryRow(`
		SELECT convert_rar_to_zip, hard_delete_conversions, generate_stump_hash, generate_koreader_hash,
		       process_metadata, library_pattern, thumbnail_format, thumbnail_sizing_width, ignore_rules, watch
		FROM library_configs WHERE library_id = ?`, libraryID.String()).Scan(
		&cfg.ConvertRarToZip, &cfg.HardDeleteConversions, &cfg.GenerateStumpHash, &cfg.GenerateKoreaderHash,
		&cfg.ProcessMetadata, &cfg.LibraryPattern, &cfg.ThumbnailFormat, &cfg.ThumbnailSizingWidth,
		&ignoreJSON, &cfg.Watch)
	if err == sql.ErrNoRows {
		return models.LibraryConfig{}, nil
	}
	if err != nil {
		return cfg, err
	}
	if ignoreJSON != "" {
		if err := json.Unmarshal([]byte(ignoreJSON), &cfg.IgnoreRules); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (r *LibraryRepository) upsertConfig(libraryID uuid.UUID, cfg models.LibraryConfig) error {
	ignoreJSON, err := json.Marshal(cfg.IgnoreRules)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`
		INSERT INTO library_configs (id, library_id, convert_rar_to_zip, hard_delete_conversions,
			generate_stump_hash, generate_koreader_hash, process_metadata, library_pattern,
			thumbnail_format, thumbnail_sizing_width, ignore_rules, watch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(library_id) DO UPDATE SET
			convert_rar_to_zip = excluded.convert_rar_to_zip,
			hard_delete_conversions = excluded.hard_delete_conversions,
			generate_stump_hash = excluded.generate_stump_hash,
			generate_koreader_hash = excluded.generate_koreader_hash,
			process_metadata = excluded.process_metadata,
			library_pattern = excluded.library_pattern,
			thumbnail_format = excluded.thumbnail_format,
			thumbnail_sizing_width = excluded.thumbnail_sizing_width,
			ignore_rules = excluded.ignore_rules,
			watch = excluded.watch`,
		uuid.New().String(), libraryID.String(), cfg.ConvertRarToZip, cfg.HardDeleteConversions,
		cfg.GenerateStumpHash, cfg.GenerateKoreaderHash, cfg.ProcessMetadata, cfg.LibraryPattern,
		cfg.ThumbnailFormat, cfg.ThumbnailSizingWidth, string(ignoreJSON), cfg.Watch)
	return err
}
