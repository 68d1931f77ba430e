package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stump/stump/internal/auth"
	"github.com/stump/stump/internal/httputil"
	"github.com/stump/stump/internal/repository"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin authenticates a username/password pair and issues a session
// token cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	user, err := s.users.GetByUsername(req.Username)
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return
	}
	if user.IsLocked {
		httputil.WriteError(w, http.StatusForbidden, "FORBIDDEN", "account is locked")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return
	}

	token, err := auth.GenerateToken()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not create session token")
		return
	}
	expires := time.Now().UTC().Add(time.Duration(s.cfg.SessionTTLSeconds) * time.Second)
	if _, err := s.db.Exec(`INSERT INTO sessions (id, user_id, token, expires_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), user.ID.String(), token, expires); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "DATABASE_ERROR", "could not create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    token,
		Expires:  expires,
		HttpOnly: true,
		Path:     "/",
	})
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie("session"); err == nil {
		s.db.Exec(`DELETE FROM sessions WHERE token = ?`, c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: "session", Value: "", MaxAge: -1, Path: "/"})
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	keys, err := s.apiKeys.ListByUser(id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, keys)
}

type createAPIKeyRequest struct {
	Name string `json:"name"`
}

// handleCreateAPIKey issues a non-expiring bearer token the caller
// embeds in OPDS catalog URLs; only its hash is persisted.
func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req createAPIKeyRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	keyID := uuid.New()
	token, err := auth.IssueAPIKey(s.cfg.JWTSecret, id, keyID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not issue key")
		return
	}
	rec := &repository.APIKey{ID: keyID, UserID: id, Name: req.Name, TokenHash: auth.HashAPIKey(token)}
	if err := s.apiKeys.Create(rec); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"id": keyID.String(), "token": token})
}

func (s *Server) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	keyID, ok := pathUUID(w, r, "keyID")
	if !ok {
		return
	}
	if err := s.apiKeys.Revoke(keyID, userID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// pathUUID parses an {id}-shaped path value, writing a 400 and returning
// ok=false on failure so handlers can early-return in one line.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}
