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

type MediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

const mediaColumns = `id, series_id, name, extension, size, pages, path, status,
	stump_hash, koreader_hash, modified_at, created_at, updated_at`

func scanMedia(row interface{ Scan(dest ...interface{}) error }) (*models.Media, error) {
	m := &models.Media{}
	var idStr, seriesIDStr string
	var stumpHash, koreaderHash sql.NullString
	err := row.Scan(&idStr, &seriesIDStr, &m.Name, &m.Extension, &m.Size, &m.Pages, &m.Path,
		&m.Status, &stumpHash, &koreaderHash, &m.ModifiedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	seriesID, err := uuid.Parse(seriesIDStr)
	if err != nil {
		return nil, err
	}
	m.ID, m.SeriesID = id, seriesID
	if stumpHash.Valid {
		m.StumpHash = &stumpHash.String
	}
	if koreaderHash.Valid {
		m.KoreaderHash = &koreaderHash.String
	}
	return m, nil
}

func (r *MediaRepository) Create(m *models.Media) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO media (id, series_id, name, extension, size, pages, path, status,
		                    stump_hash, koreader_hash, modified_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.SeriesID.String(), m.Name, m.Extension, m.Size, m.Pages, m.Path, m.Status,
		m.StumpHash, m.KoreaderHash, m.ModifiedAt, now, now)
	if err != nil {
		return err
	}
	m.CreatedAt, m.UpdatedAt = now, now
	if m.Metadata != nil {
		return r.upsertMetadata(m.Metadata)
	}
	return nil
}

func (r *MediaRepository) GetByID(id uuid.UUID) (*models.Media, error) {
	m, err := scanMedia(r.db.QueryRow(`SELECT `+mediaColumns+` FROM media WHERE id = ?`, id.String()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("media not found")
	}
	if err != nil {
		return nil, err
	}
	meta, err := r.getMetadata(id)
	if err != nil {
		return nil, err
	}
	m.Metadata = meta
	return m, nil
}

// GetByPath looks up a media row by file path, returning nil when none
// exists; the scan job's mark_missing_media task uses it.
func (r *MediaRepository) GetByPath(path string) (*models.Media, error) {
	m, err := scanMedia(r.db.QueryRow(`SELECT `+mediaColumns+` FROM media WHERE path = ?`, path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *MediaRepository) GetByStumpHash(hash string) ([]*models.Media, error) {
	rows, err := r.db.Query(`SELECT `+mediaColumns+` FROM media WHERE stump_hash = ?`, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *MediaRepository) GetByKoreaderHash(hash string) (*models.Media, error) {
	m, err := scanMedia(r.db.QueryRow(`SELECT `+mediaColumns+` FROM media WHERE koreader_hash = ? LIMIT 1`, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *MediaRepository) ListBySeries(seriesID uuid.UUID) ([]*models.Media, error) {
	rows, err := r.db.Query(`SELECT `+mediaColumns+` FROM media WHERE series_id = ? ORDER BY name ASC`, seriesID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

// FindForUser runs an access-composed query: extra is the caller's own
// filter (e.g. from the Smart Filter Engine compiler), merged with the
// user's hidden-library/age-restriction condition via access.And, never by
// string-appending a second WHERE clause.
func (r *MediaRepository) FindForUser(user *models.User, extra access.Condition, limit, offset int) ([]*models.Media, error) {
	join := `FROM media m
		JOIN series s ON s.id = m.series_id
		JOIN libraries l ON l.id = s.library_id
		LEFT JOIN media_metadata mm ON mm.media_id = m.id
		LEFT JOIN series_metadata sm ON sm.series_id = s.id`
	userCond := access.ForUser(user, "l.id", "mm.age_rating", "sm.age_rating")
	cond := access.And(userCond, extra)
	whereSQL, args := cond.Render()
	cols := `m.id, m.series_id, m.name, m.extension, m.size, m.pages, m.path, m.status,
		m.stump_hash, m.koreader_hash, m.modified_at, m.created_at, m.updated_at`
	query := fmt.Sprintf("SELECT %s %s%s ORDER BY m.name ASC LIMIT ? OFFSET ?", cols, join, whereSQL)
	args = append(args, limit, offset)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *MediaRepository) collect(rows *sql.Rows) ([]*models.Media, error) {
	list := []*models.Media{}
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (r *MediaRepository) Update(m *models.Media) error {
	result, err := r.db.Exec(`
		UPDATE media SET name = ?, extension = ?, size = ?, pages = ?, path = ?, status = ?,
			stump_hash = ?, koreader_hash = ?, modified_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		m.Name, m.Extension, m.Size, m.Pages, m.Path, m.Status, m.StumpHash, m.KoreaderHash,
		m.ModifiedAt, m.ID.String())
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("media not found")
	}
	if m.Metadata != nil {
		return r.upsertMetadata(m.Metadata)
	}
	return nil
}

func (r *MediaRepository) UpdateStatus(id uuid.UUID, status models.LibraryStatus) error {
	_, err := r.db.Exec(`UPDATE media SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id.String())
	return err
}

func (r *MediaRepository) Delete(id uuid.UUID) error {
	result, err := r.db.Exec(`DELETE FROM media WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("media not found")
	}
	return nil
}

func (r *MediaRepository) CountBySeries(seriesID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM media WHERE series_id = ?`, seriesID.String()).Scan(&count)
	return count, err
}

func (r *MediaRepository) getMetadata(mediaID uuid.UUID) (*models.MediaMetadata, error) {
	var m models.MediaMetadata
	var creatorsJSON sql.NullString
	var title, series, genre, summary sql.NullString
	var number sql.NullFloat64
	var volume, year, ageRating, pageWidth, pageHeight sql.NullInt64
	err := r.db.QueryRow(`
		SELECT title, series, number, volume, year, genre, summary, creators, age_rating, page_width, page_height
		FROM media_metadata WHERE media_id = ?`, mediaID.String()).Scan(
		&title, &series, &number, &volume, &year, &genre, &summary, &creatorsJSON, &ageRating, &pageWidth, &pageHeight)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.MediaID = mediaID
	if title.Valid {
		m.Title = &title.String
	}
	if series.Valid {
		m.Series = &series.String
	}
	if number.Valid {
		m.Number = &number.Float64
	}
	if volume.Valid {
		v := int(volume.Int64)
		m.Volume = &v
	}
	if year.Valid {
		v := int(year.Int64)
		m.Year = &v
	}
	if genre.Valid {
		m.Genre = &genre.String
	}
	if summary.Valid {
		m.Summary = &summary.String
	}
	if ageRating.Valid {
		v := int(ageRating.Int64)
		m.AgeRating = &v
	}
	if pageWidth.Valid {
		v := int(pageWidth.Int64)
		m.PageWidth = &v
	}
	if pageHeight.Valid {
		v := int(pageHeight.Int64)
		m.PageHeight = &v
	}
	if creatorsJSON.Valid && creatorsJSON.String != "" {
		json.Unmarshal([]byte(creatorsJSON.String), &m.Creators)
	}
	return &m, nil
}

func (r *MediaRepository) upsertMetadata(m *models.MediaMetadata) error {
	creatorsJSON, err := json.Marshal(m.Creators)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`
		INSERT INTO media_metadata (media_id, title, series, number, volume, year, genre, summary,
			creators, age_rating, page_width, page_height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(media_id) DO UPDATE SET
			title = excluded.title, series = excluded.series, number = excluded.number,
			volume = excluded.volume, year = excluded.year, genre = excluded.genre,
			summary = excluded.summary, creators = excluded.creators, age_rating = excluded.age_rating,
			page_width = excluded.page_width, page_height = excluded.page_height`,
		m.MediaID.String(), m.Title, m.Series, m.Number, m.Volume, m.Year, m.Genre, m.Summary,
		string(creatorsJSON), m.AgeRating, m.PageWidth, m.PageHeight)
	return err
}
