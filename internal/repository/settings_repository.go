package repository

import (
	"database/sql"
)

// SettingsRepository persists server-wide key/value settings, backing
// the config-merge-from-DB layer that overlays stored overrides onto the
// env config at startup.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM server_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SettingsRepository) Set(key, value string) error {
	query := `INSERT INTO server_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := r.db.Exec(query, key, value)
	return err
}

func (r *SettingsRepository) GetAll() (map[string]string, error) {
	rows, err := r.db.Query(`SELECT key, value FROM server_settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

func (r *SettingsRepository) Delete(key string) error {
	_, err := r.db.Exec(`DELETE FROM server_settings WHERE key = ?`, key)
	return err
}
