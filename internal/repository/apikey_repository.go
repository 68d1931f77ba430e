package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKey is an issued long-lived bearer token record; only its hash is
// ever stored (internal/auth.HashAPIKey), never the raw token. (Session
// tokens, by contrast, are stored in the sessions table as issued.)
type APIKey struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	TokenHash string
	CreatedAt time.Time
}

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Create(k *APIKey) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO api_keys (id, user_id, name, token_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		k.ID.String(), k.UserID.String(), k.Name, k.TokenHash, now)
	if err != nil {
		return err
	}
	k.CreatedAt = now
	return nil
}

func (r *APIKeyRepository) ListByUser(userID uuid.UUID) ([]*APIKey, error) {
	rows, err := r.db.Query(`SELECT id, user_id, name, token_hash, created_at FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`,
		userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*APIKey
	for rows.Next() {
		k := &APIKey{}
		var idStr, userIDStr string
		if err := rows.Scan(&idStr, &userIDStr, &k.Name, &k.TokenHash, &k.CreatedAt); err != nil {
			return nil, err
		}
		k.ID, _ = uuid.Parse(idStr)
		k.UserID, _ = uuid.Parse(userIDStr)
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *APIKeyRepository) Revoke(id, userID uuid.UUID) error {
	result, err := r.db.Exec(`DELETE FROM api_keys WHERE id = ? AND user_id = ?`, id.String(), userID.String())
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("api key not found")
	}
	return nil
}
