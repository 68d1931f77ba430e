package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SmartList is a saved Smart Filter Engine filter, scoped to
// the user who created it. Its Filter is stored as the compiled JSON AST
// (SmartFilter[E]) rather than pre-rendered SQL, so edits to the compiler
// automatically apply to every saved list.
type SmartList struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Name       string
	Entity     string // "media" | "series"
	FilterJSON string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type SmartListRepository struct {
	db *sql.DB
}

func NewSmartListRepository(db *sql.DB) *SmartListRepository {
	return &SmartListRepository{db: db}
}

func (r *SmartListRepository) Create(sl *SmartList) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO smart_lists (id, user_id, name, entity, filter_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sl.ID.String(), sl.UserID.String(), sl.Name, sl.Entity, sl.FilterJSON, now, now)
	if err != nil {
		return err
	}
	sl.CreatedAt, sl.UpdatedAt = now, now
	return nil
}

func (r *SmartListRepository) GetByID(id uuid.UUID) (*SmartList, error) {
	sl, err := scanSmartList(r.db.QueryRow(`
		SELECT id, user_id, name, entity, filter_json, created_at, updated_at
		FROM smart_lists WHERE id = ?`, id.String()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("smart list not found")
	}
	return sl, err
}

func (r *SmartListRepository) ListByUser(userID uuid.UUID) ([]*SmartList, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, name, entity, filter_json, created_at, updated_at
		FROM smart_lists WHERE user_id = ? ORDER BY name ASC`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SmartList
	for rows.Next() {
		sl, err := scanSmartList(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

func (r *SmartListRepository) Update(sl *SmartList) error {
	result, err := r.db.Exec(`
		UPDATE smart_lists SET name = ?, entity = ?, filter_json = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, sl.Name, sl.Entity, sl.FilterJSON, sl.ID.String())
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("smart list not found")
	}
	return nil
}

func (r *SmartListRepository) Delete(id uuid.UUID) error {
	_, err := r.db.Exec(`DELETE FROM smart_lists WHERE id = ?`, id.String())
	return err
}

func scanSmartList(row interface{ Scan(dest ...interface{}) error }) (*SmartList, error) {
	sl := &SmartList{}
	var idStr, userIDStr string
	err := row.Scan(&idStr, &userIDStr, &sl.Name, &sl.Entity, &sl.FilterJSON, &sl.CreatedAt, &sl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sl.ID, _ = uuid.Parse(idStr)
	sl.UserID, _ = uuid.Parse(userIDStr)
	return sl, nil
}
