package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stump/stump/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, password_hash, is_server_owner, is_locked, permissions,
	age_restriction_age, age_restriction_on_unset, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...interface{}) error }) (*models.User, error) {
	user := &models.User{}
	var idStr, permsStr string
	var ageAge sql.NullInt64
	var ageOnUnset bool
	err := row.Scan(&idStr, &user.Username, &user.PasswordHash, &user.IsServerOwner, &user.IsLocked,
		&permsStr, &ageAge, &ageOnUnset, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	user.ID = id
	user.Permissions = models.DecodePermissions(permsStr)
	if ageAge.Valid {
		age := int(ageAge.Int64)
		user.AgeRestriction = &models.AgeRestriction{Age: age, RestrictOnUnset: ageOnUnset}
	}
	return user, nil
}

// withHiddenLibraries is called after every scan that returns a caller-
// facing *models.User, since HiddenLibraries lives in its own join table.
func (r *UserRepository) withHiddenLibraries(user *models.User) (*models.User, error) {
	rows, err := r.db.Query(`SELECT library_id FROM user_hidden_libraries WHERE user_id = ?`, user.ID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		if id, err := uuid.Parse(idStr); err == nil {
			user.HiddenLibraries = append(user.HiddenLibraries, id)
		}
	}
	return user, rows.Err()
}

func (r *UserRepository) Create(user *models.User) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, username, password_hash, is_server_owner, is_locked, permissions,
		                    age_restriction_age, age_restriction_on_unset, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query, user.ID.String(), user.Username, user.PasswordHash,
		user.IsServerOwner, user.IsLocked, models.EncodePermissions(user.Permissions),
		ageArg(user.AgeRestriction), ageOnUnsetArg(user.AgeRestriction), now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("username already exists")
		}
		return err
	}
	user.CreatedAt, user.UpdatedAt = now, now
	return r.replaceHiddenLibraries(user)
}

func (r *UserRepository) GetByID(id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(r.db.QueryRow(query, id.String()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, err
	}
	return r.withHiddenLibraries(user)
}

func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	user, err := scanUser(r.db.QueryRow(query, username))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, err
	}
	return r.withHiddenLibraries(user)
}

func (r *UserRepository) List() ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY username ASC`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, u := range users {
		if _, err := r.withHiddenLibraries(u); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r *UserRepository) Update(user *models.User) error {
	query := `
		UPDATE users
		SET username = ?, is_server_owner = ?, is_locked = ?, permissions = ?,
		    age_restriction_age = ?, age_restriction_on_unset = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	result, err := r.db.Exec(query, user.Username, user.IsServerOwner, user.IsLocked,
		models.EncodePermissions(user.Permissions), ageArg(user.AgeRestriction),
		ageOnUnsetArg(user.AgeRestriction), user.ID.String())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}
	return r.replaceHiddenLibraries(user)
}

func (r *UserRepository) replaceHiddenLibraries(user *models.User) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM user_hidden_libraries WHERE user_id = ?`, user.ID.String()); err != nil {
		return err
	}
	for _, libID := range user.HiddenLibraries {
		if _, err := tx.Exec(`INSERT INTO user_hidden_libraries (user_id, library_id) VALUES (?, ?)`,
			user.ID.String(), libID.String()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *UserRepository) UpdatePassword(id uuid.UUID, passwordHash string) error {
	query := `UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	result, err := r.db.Exec(query, passwordHash, id.String())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

func (r *UserRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

func (r *UserRepository) Delete(id uuid.UUID) error {
	query := `DELETE FROM users WHERE id = ?`
	result, err := r.db.Exec(query, id.String())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

func ageArg(ar *models.AgeRestriction) interface{} {
	if ar == nil {
		return nil
	}
	return ar.Age
}

func ageOnUnsetArg(ar *models.AgeRestriction) interface{} {
	if ar == nil {
		return false
	}
	return ar.RestrictOnUnset
}
