package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stump/stump/internal/access"
	"github.com/stump/stump/internal/models"
)

type SeriesRepository struct {
	db *sql.DB
}

func NewSeriesRepository(db *sql.DB) *SeriesRepository {
	return &SeriesRepository{db: db}
}

const seriesColumns = `id, library_id, name, path, status, created_at, updated_at`

func scanSeries(row interface{ Scan(dest ...interface{}) error }) (*models.Series, error) {
	s := &models.Series{}
	var idStr, libIDStr string
	err := row.Scan(&idStr, &libIDStr, &s.Name, &s.Path, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	libID, err := uuid.Parse(libIDStr)
	if err != nil {
		return nil, err
	}
	s.ID, s.LibraryID = id, libID
	return s, nil
}

func (r *SeriesRepository) Create(s *models.Series) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO series (id, library_id, name, path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.LibraryID.String(), s.Name, s.Path, s.Status, now, now)
	if err != nil {
		return err
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

func (r *SeriesRepository) GetByID(id uuid.UUID) (*models.Series, error) {
	s, err := scanSeries(r.db.QueryRow(`SELECT `+seriesColumns+` FROM series WHERE id = ?`, id.String()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("series not found")
	}
	if err != nil {
		return nil, err
	}
	meta, err := r.getMetadata(id)
	if err != nil {
		return nil, err
	}
	s.Metadata = meta
	return s, nil
}

// GetByPath supports the scan job's "does this directory already have a
// series row" lookup in its walk_series task, returning nil when none exists.
func (r *SeriesRepository) GetByPath(path string) (*models.Series, error) {
	s, err := scanSeries(r.db.QueryRow(`SELECT `+seriesColumns+` FROM series WHERE path = ?`, path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *SeriesRepository) ListByLibrary(libraryID uuid.UUID) ([]*models.Series, error) {
	rows, err := r.db.Query(`SELECT `+seriesColumns+` FROM series WHERE library_id = ? ORDER BY name ASC`, libraryID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

// ListForUser applies the composer's series-level variant: a series is
// visible only if at least one of its media would itself be visible.
func (r *SeriesRepository) ListForUser(user *models.User, libraryID uuid.UUID) ([]*models.Series, error) {
	cond := access.ForUserSeriesChildren(user, "media", "series.id", "l.id", "mm.age_rating", "sm.age_rating")
	base := `library_id = ?`
	var args []interface{}
	args = append(args, libraryID.String())
	whereSQL := ` WHERE (` + base + `)`
	if !cond.Empty() {
		whereSQL += ` AND (` + cond.SQL + `)`
		args = append(args, cond.Args...)
	}
	query := `SELECT ` + seriesColumns + ` FROM series` + whereSQL + ` ORDER BY name ASC`
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *SeriesRepository) collect(rows *sql.Rows) ([]*models.Series, error) {
	list := []*models.Series{}
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *SeriesRepository) Update(s *models.Series) error {
	result, err := r.db.Exec(`
		UPDATE series SET name = ?, path = ?, status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		s.Name, s.Path, s.Status, s.ID.String())
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("series not found")
	}
	return nil
}

func (r *SeriesRepository) UpdateStatus(id uuid.UUID, status models.LibraryStatus) error {
	_, err := r.db.Exec(`UPDATE series SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id.String())
	return err
}

func (r *SeriesRepository) Delete(id uuid.UUID) error {
	result, err := r.db.Exec(`DELETE FROM series WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("series not found")
	}
	return nil
}

func (r *SeriesRepository) getMetadata(seriesID uuid.UUID) (*models.SeriesMetadata, error) {
	var m models.SeriesMetadata
	var summary, publisher sql.NullString
	var ageRating sql.NullInt64
	err := r.db.QueryRow(`SELECT summary, age_rating, publisher FROM series_metadata WHERE series_id = ?`,
		seriesID.String()).Scan(&summary, &ageRating, &publisher)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.SeriesID = seriesID
	if summary.Valid {
		m.Summary = &summary.String
	}
	if publisher.Valid {
		m.Publisher = &publisher.String
	}
	if ageRating.Valid {
		v := int(ageRating.Int64)
		m.AgeRating = &v
	}
	return &m, nil
}

func (r *SeriesRepository) UpsertMetadata(m *models.SeriesMetadata) error {
	_, err := r.db.Exec(`
		INSERT INTO series_metadata (series_id, summary, age_rating, publisher)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(series_id) DO UPDATE SET summary = excluded.summary,
			age_rating = excluded.age_rating, publisher = excluded.publisher`,
		m.SeriesID.String(), m.Summary, m.AgeRating, m.Publisher)
	return err
}
