package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// APIKeyClaims identifies the bearer of a long-lived API key token. Unlike
// a session cookie, these are designed to be embedded directly in OPDS
// catalog URLs so an e-reader
// client can re-fetch a feed without a separate auth handshake.
type APIKeyClaims struct {
	UserID uuid.UUID `json:"uid"`
	KeyID  uuid.UUID `json:"kid"`
	jwt.RegisteredClaims
}

var ErrInvalidAPIKey = errors.New("invalid api key")

// IssueAPIKey signs a non-expiring bearer token for (userID, keyID). The
// caller persists a hash of the returned token in api_keys.token_hash so it
// can be looked up and revoked without storing the signing secret anywhere
// but the server process.
func IssueAPIKey(secret string, userID, keyID uuid.UUID) (string, error) {
	claims := APIKeyClaims{
		UserID: userID,
		KeyID:  keyID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAPIKey verifies the token's signature and returns its claims.
func ParseAPIKey(secret, tokenString string) (*APIKeyClaims, error) {
	claims := &APIKeyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAPIKey
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidAPIKey
	}
	return claims, nil
}

// HashAPIKey returns the value stored in api_keys.token_hash — the raw
// bearer token is never persisted, only its digest, so a leaked database
// dump cannot be replayed as a working key.
func HashAPIKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
