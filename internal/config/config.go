package config

import (
	"database/sql"
	"log"
	"os"
	"strconv"
)

// Config is StumpConfig. Load reads it from environment variables only (no
// config file is read); MergeFromDB then overlays server_settings rows.
type Config struct {
	Port                  int
	DataDir               string
	DatabasePath          string
	RedisAddr             string
	MaxScannerConcurrency int
	PasswordHashCost      int
	EncryptionKey         string
	SessionTTLSeconds     int
	JWTSecret             string
}

func Load() *Config {
	return &Config{
		Port:                  envInt("PORT", 10801),
		DataDir:               env("DATA_DIR", "/data"),
		DatabasePath:          env("DATABASE_PATH", "/data/stump.db"),
		RedisAddr:             env("REDIS_ADDR", "127.0.0.1:6379"),
		JWTSecret:             env("JWT_SECRET", "change-me-in-production"),
		MaxScannerConcurrency: envInt("MAX_SCANNER_CONCURRENCY", 20),
		PasswordHashCost:      envInt("PASSWORD_HASH_COST", 12),
		EncryptionKey:         env("ENCRYPTION_KEY", ""),
		SessionTTLSeconds:     envInt("SESSION_TTL_SECONDS", 86400*30),
	}
}

// MergeFromDB overlays any settings persisted in the server_settings table,
// letting admin-configured values win over env defaults at startup.
func (c *Config) MergeFromDB(db *sql.DB) {
	rows, err := db.Query("SELECT key, value FROM server_settings")
	if err != nil {
		log.Printf("config: skipping DB merge: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		switch key {
		case "max_scanner_concurrency":
			if v, err := strconv.Atoi(value); err == nil {
				c.MaxScannerConcurrency = v
			}
		case "password_hash_cost":
			if v, err := strconv.Atoi(value); err == nil {
				c.PasswordHashCost = v
			}
		case "session_ttl_seconds":
			if v, err := strconv.Atoi(value); err == nil {
				c.SessionTTLSeconds = v
			}
		}
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
